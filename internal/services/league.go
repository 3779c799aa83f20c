package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/providers"
	"github.com/gridironlabs/ffpipeline/internal/storage"
	"github.com/gridironlabs/ffpipeline/pkg/logger"
)

// LeagueSyncService mirrors fantasy platform data: the master player map for
// identity linking, plus per-league rosters, matchups and transactions.
type LeagueSyncService struct {
	sleeper  *providers.SleeperClient
	blob     storage.BlobStore
	dims     *DimStore
	breakers *CircuitBreakerService
	logger   *logrus.Logger
}

func NewLeagueSyncService(sleeper *providers.SleeperClient, blob storage.BlobStore, dims *DimStore, breakers *CircuitBreakerService, log *logrus.Logger) *LeagueSyncService {
	return &LeagueSyncService{sleeper: sleeper, blob: blob, dims: dims, breakers: breakers, logger: log}
}

// SyncPlayers fetches the platform's master player map, snapshots it, and
// links platform ids onto the players dimension. Per-player link failures are
// reported in the result, not raised.
func (s *LeagueSyncService) SyncPlayers(ctx context.Context) (*StageResult, error) {
	res, err := s.breakers.Execute("sleeper", func() (interface{}, error) {
		players, raw, err := s.sleeper.FetchPlayers(ctx)
		if err != nil {
			return nil, err
		}
		return struct {
			players map[string]providers.SleeperPlayer
			raw     []byte
		}{players, raw}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch platform players: %w", err)
	}
	fetched := res.(struct {
		players map[string]providers.SleeperPlayer
		raw     []byte
	})

	if err := s.blob.Put(storage.RawBucket, storage.SleeperPlayersPath(), fetched.raw); err != nil {
		return nil, fmt.Errorf("failed to snapshot platform players: %w", err)
	}

	dimPlayers, err := s.dims.AllPlayers()
	if err != nil {
		return nil, err
	}
	targets := make([]MatchTarget, 0, len(dimPlayers))
	for _, p := range dimPlayers {
		targets = append(targets, MatchTarget{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Position: p.Position,
			Team:     p.Team,
		})
	}

	candidates := make([]MatchCandidate, 0, len(fetched.players))
	for sleeperID, sp := range fetched.players {
		candidates = append(candidates, MatchCandidate{
			SleeperID: sleeperID,
			Name:      sp.FullName,
			Position:  sp.Position,
			Team:      providers.NormalizeTeam(sp.Team),
		})
	}

	result := MatchPlayers(candidates, targets)

	linked := 0
	for _, pair := range result.Pairs {
		if err := s.dims.SetSleeperID(pair.PlayerID, pair.SleeperID); err != nil {
			logger.WithStage("sync_players").WithError(err).WithField("player_id", pair.PlayerID).Warn("Failed to link player")
			continue
		}
		linked++
	}

	logger.WithStage("sync_players").WithFields(logrus.Fields{
		"candidates": len(candidates),
		"linked":     linked,
		"unmatched":  len(result.Unmatched),
	}).Info("Player identities linked")

	return &StageResult{
		OK: true,
		Counts: map[string]int{
			"candidates": len(candidates),
			"linked":     linked,
			"unmatched":  len(result.Unmatched),
		},
	}, nil
}

// SyncLeagueIndex mirrors a league's season-level documents: metadata,
// managers and rosters.
func (s *LeagueSyncService) SyncLeagueIndex(ctx context.Context, leagueID string) (*StageResult, error) {
	league, rawLeague, err := s.fetchLeague(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	users, rawUsers, err := s.fetchUsers(ctx, leagueID)
	if err != nil {
		return nil, err
	}
	rosters, rawRosters, err := s.fetchRosters(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	for doc, raw := range map[string][]byte{
		"league":  rawLeague,
		"users":   rawUsers,
		"rosters": rawRosters,
	} {
		if err := s.blob.Put(storage.RawBucket, storage.SleeperLeaguePath(leagueID, doc), raw); err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", doc, err)
		}
	}

	season, err := strconv.Atoi(league.Season)
	if err != nil {
		return nil, fmt.Errorf("league %s has unparseable season %q", leagueID, league.Season)
	}

	leagueRow := &models.League{
		Platform:        "sleeper",
		LeagueID:        league.LeagueID,
		Season:          season,
		Name:            league.Name,
		ScoringSettings: rawJSONString(league.ScoringSettings),
		RosterSettings:  rawJSONString(league.RosterPositions),
	}
	if err := s.dims.UpsertLeague(leagueRow); err != nil {
		return nil, err
	}

	userRows := make([]models.LeagueUser, 0, len(users))
	for _, u := range users {
		userRows = append(userRows, models.LeagueUser{
			Platform:    "sleeper",
			LeagueID:    leagueID,
			UserID:      u.UserID,
			DisplayName: u.DisplayName,
		})
	}
	if err := s.dims.UpsertLeagueUsers(userRows); err != nil {
		return nil, err
	}

	rosterRows := make([]models.LeagueRoster, 0, len(rosters))
	for _, r := range rosters {
		rosterRows = append(rosterRows, models.LeagueRoster{
			Platform: "sleeper",
			LeagueID: leagueID,
			Season:   season,
			RosterID: r.RosterID,
			OwnerID:  r.OwnerID,
			Players:  r.Players,
		})
	}
	if err := s.dims.UpsertLeagueRosters(rosterRows); err != nil {
		return nil, err
	}

	logger.WithStage("sync_league_index").WithFields(logrus.Fields{
		"league_id": leagueID,
		"season":    season,
		"users":     len(userRows),
		"rosters":   len(rosterRows),
	}).Info("League index synced")

	return &StageResult{
		OK:     true,
		Season: season,
		Counts: map[string]int{"users": len(userRows), "rosters": len(rosterRows)},
	}, nil
}

// SyncLeagueWeek mirrors one week of a league: matchups and transactions.
func (s *LeagueSyncService) SyncLeagueWeek(ctx context.Context, leagueID string, season, week int) (*StageResult, error) {
	matchups, rawMatchups, err := s.fetchMatchups(ctx, leagueID, week)
	if err != nil {
		return nil, err
	}
	transactions, payloads, rawTx, err := s.fetchTransactions(ctx, leagueID, week)
	if err != nil {
		return nil, err
	}

	if err := s.blob.Put(storage.RawBucket, storage.SleeperLeagueWeekPath(leagueID, week, "matchups"), rawMatchups); err != nil {
		return nil, fmt.Errorf("failed to snapshot matchups: %w", err)
	}
	if err := s.blob.Put(storage.RawBucket, storage.SleeperLeagueWeekPath(leagueID, week, "transactions"), rawTx); err != nil {
		return nil, fmt.Errorf("failed to snapshot transactions: %w", err)
	}

	matchupRows := make([]models.Matchup, 0, len(matchups))
	for _, m := range matchups {
		matchupRows = append(matchupRows, models.Matchup{
			Platform:  "sleeper",
			LeagueID:  leagueID,
			Season:    season,
			Week:      week,
			MatchupID: m.MatchupID,
			RosterID:  m.RosterID,
			Points:    m.Points,
			Starters:  m.Starters,
			Players:   m.Players,
		})
	}
	if err := s.dims.UpsertMatchups(matchupRows); err != nil {
		return nil, err
	}

	txRows := make([]models.LeagueTransaction, 0, len(transactions))
	for i, t := range transactions {
		ts := t.StatusUpdated
		if ts == 0 {
			ts = t.Created
		}
		txRows = append(txRows, models.LeagueTransaction{
			LeagueID:  leagueID,
			TxID:      t.TransactionID,
			Timestamp: ts,
			Type:      t.Type,
			Payload:   string(payloads[i]),
			Season:    season,
			Week:      week,
		})
	}
	if err := s.dims.UpsertTransactions(txRows); err != nil {
		return nil, err
	}

	logger.WithStageWeek("sync_league_week", season, week).WithFields(logrus.Fields{
		"league_id":    leagueID,
		"matchups":     len(matchupRows),
		"transactions": len(txRows),
	}).Info("League week synced")

	return &StageResult{
		OK:     true,
		Season: season,
		Week:   week,
		Counts: map[string]int{"matchups": len(matchupRows), "transactions": len(txRows)},
	}, nil
}

func (s *LeagueSyncService) fetchLeague(ctx context.Context, leagueID string) (*providers.SleeperLeague, []byte, error) {
	type out struct {
		league *providers.SleeperLeague
		raw    []byte
	}
	res, err := s.breakers.Execute("sleeper", func() (interface{}, error) {
		league, raw, err := s.sleeper.FetchLeague(ctx, leagueID)
		if err != nil {
			return nil, err
		}
		return out{league, raw}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch league %s: %w", leagueID, err)
	}
	o := res.(out)
	return o.league, o.raw, nil
}

func (s *LeagueSyncService) fetchUsers(ctx context.Context, leagueID string) ([]providers.SleeperUser, []byte, error) {
	type out struct {
		users []providers.SleeperUser
		raw   []byte
	}
	res, err := s.breakers.Execute("sleeper", func() (interface{}, error) {
		users, raw, err := s.sleeper.FetchLeagueUsers(ctx, leagueID)
		if err != nil {
			return nil, err
		}
		return out{users, raw}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch users for league %s: %w", leagueID, err)
	}
	o := res.(out)
	return o.users, o.raw, nil
}

func (s *LeagueSyncService) fetchRosters(ctx context.Context, leagueID string) ([]providers.SleeperRoster, []byte, error) {
	type out struct {
		rosters []providers.SleeperRoster
		raw     []byte
	}
	res, err := s.breakers.Execute("sleeper", func() (interface{}, error) {
		rosters, raw, err := s.sleeper.FetchLeagueRosters(ctx, leagueID)
		if err != nil {
			return nil, err
		}
		return out{rosters, raw}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch rosters for league %s: %w", leagueID, err)
	}
	o := res.(out)
	return o.rosters, o.raw, nil
}

func (s *LeagueSyncService) fetchMatchups(ctx context.Context, leagueID string, week int) ([]providers.SleeperMatchup, []byte, error) {
	type out struct {
		matchups []providers.SleeperMatchup
		raw      []byte
	}
	res, err := s.breakers.Execute("sleeper", func() (interface{}, error) {
		matchups, raw, err := s.sleeper.FetchMatchups(ctx, leagueID, week)
		if err != nil {
			return nil, err
		}
		return out{matchups, raw}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch matchups for league %s week %d: %w", leagueID, week, err)
	}
	o := res.(out)
	return o.matchups, o.raw, nil
}

func (s *LeagueSyncService) fetchTransactions(ctx context.Context, leagueID string, week int) ([]providers.SleeperTransaction, []json.RawMessage, []byte, error) {
	type out struct {
		transactions []providers.SleeperTransaction
		payloads     []json.RawMessage
		raw          []byte
	}
	res, err := s.breakers.Execute("sleeper", func() (interface{}, error) {
		transactions, payloads, raw, err := s.sleeper.FetchTransactions(ctx, leagueID, week)
		if err != nil {
			return nil, err
		}
		return out{transactions, payloads, raw}, nil
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to fetch transactions for league %s week %d: %w", leagueID, week, err)
	}
	o := res.(out)
	return o.transactions, o.payloads, o.raw, nil
}

func rawJSONString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
