package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// SleeperPlayer is one entry of the Sleeper master player map.
type SleeperPlayer struct {
	FullName       string `json:"full_name"`
	SearchFullName string `json:"search_full_name"`
	FirstName      string `json:"first_name"`
	Position       string `json:"position"`
	Team           string `json:"team"`
}

// SleeperLeague is league metadata for one season.
type SleeperLeague struct {
	LeagueID        string          `json:"league_id"`
	Name            string          `json:"name"`
	Season          string          `json:"season"`
	ScoringSettings json.RawMessage `json:"scoring_settings"`
	RosterPositions json.RawMessage `json:"roster_positions"`
}

// SleeperUser is one manager in a league.
type SleeperUser struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// SleeperRoster is one roster in a league.
type SleeperRoster struct {
	RosterID int      `json:"roster_id"`
	OwnerID  string   `json:"owner_id"`
	Players  []string `json:"players"`
}

// SleeperMatchup is one roster's side of a weekly matchup.
type SleeperMatchup struct {
	MatchupID int      `json:"matchup_id"`
	RosterID  int      `json:"roster_id"`
	Points    float64  `json:"points"`
	Starters  []string `json:"starters"`
	Players   []string `json:"players"`
}

// SleeperTransaction is one league transaction.
type SleeperTransaction struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	StatusUpdated int64  `json:"status_updated"`
	Created       int64  `json:"created"`
}

// SleeperClient talks to the Sleeper fantasy platform API.
type SleeperClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

func NewSleeperClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *SleeperClient {
	return &SleeperClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// getRaw fetches a URL and returns the raw body so callers can both decode it
// and snapshot it to the blob store unmodified.
func (c *SleeperClient) getRaw(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// FetchPlayers downloads the master player map plus its raw bytes.
func (c *SleeperClient) FetchPlayers(ctx context.Context) (map[string]SleeperPlayer, []byte, error) {
	raw, err := c.getRaw(ctx, "/v1/players/nfl")
	if err != nil {
		return nil, nil, err
	}
	var players map[string]SleeperPlayer
	if err := json.Unmarshal(raw, &players); err != nil {
		return nil, nil, fmt.Errorf("failed to decode players: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"provider": "sleeper",
		"players":  len(players),
	}).Info("Fetched master player map")
	return players, raw, nil
}

// FetchLeague downloads league metadata plus its raw bytes.
func (c *SleeperClient) FetchLeague(ctx context.Context, leagueID string) (*SleeperLeague, []byte, error) {
	raw, err := c.getRaw(ctx, "/v1/league/"+leagueID)
	if err != nil {
		return nil, nil, err
	}
	var league SleeperLeague
	if err := json.Unmarshal(raw, &league); err != nil {
		return nil, nil, fmt.Errorf("failed to decode league: %w", err)
	}
	return &league, raw, nil
}

// FetchLeagueUsers downloads the league's managers plus raw bytes.
func (c *SleeperClient) FetchLeagueUsers(ctx context.Context, leagueID string) ([]SleeperUser, []byte, error) {
	raw, err := c.getRaw(ctx, "/v1/league/"+leagueID+"/users")
	if err != nil {
		return nil, nil, err
	}
	var users []SleeperUser
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, raw, nil
}

// FetchLeagueRosters downloads the league's rosters plus raw bytes.
func (c *SleeperClient) FetchLeagueRosters(ctx context.Context, leagueID string) ([]SleeperRoster, []byte, error) {
	raw, err := c.getRaw(ctx, "/v1/league/"+leagueID+"/rosters")
	if err != nil {
		return nil, nil, err
	}
	var rosters []SleeperRoster
	if err := json.Unmarshal(raw, &rosters); err != nil {
		return nil, nil, fmt.Errorf("failed to decode rosters: %w", err)
	}
	return rosters, raw, nil
}

// FetchMatchups downloads one week of matchups plus raw bytes.
func (c *SleeperClient) FetchMatchups(ctx context.Context, leagueID string, week int) ([]SleeperMatchup, []byte, error) {
	raw, err := c.getRaw(ctx, fmt.Sprintf("/v1/league/%s/matchups/%d", leagueID, week))
	if err != nil {
		return nil, nil, err
	}
	var matchups []SleeperMatchup
	if err := json.Unmarshal(raw, &matchups); err != nil {
		return nil, nil, fmt.Errorf("failed to decode matchups: %w", err)
	}
	return matchups, raw, nil
}

// FetchTransactions downloads one week of transactions plus raw bytes. The
// full raw objects ride along as payloads for the transaction rows.
func (c *SleeperClient) FetchTransactions(ctx context.Context, leagueID string, week int) ([]SleeperTransaction, []json.RawMessage, []byte, error) {
	raw, err := c.getRaw(ctx, fmt.Sprintf("/v1/league/%s/transactions/%d", leagueID, week))
	if err != nil {
		return nil, nil, nil, err
	}
	var payloads []json.RawMessage
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	transactions := make([]SleeperTransaction, len(payloads))
	for i, p := range payloads {
		if err := json.Unmarshal(p, &transactions[i]); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to decode transaction %d: %w", i, err)
		}
	}
	return transactions, payloads, raw, nil
}
