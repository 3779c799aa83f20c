package providers

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
)

// identityColumns are kept as strings when a weekly stat file is parsed;
// everything else is treated as numeric with unparseable cells left null.
var identityColumns = map[string]bool{
	"player_id":     true,
	"player_name":   true,
	"recent_team":   true,
	"team":          true,
	"position":      true,
	"opponent_team": true,
	"season_type":   true,
}

// GameRow is one game from the upstream schedule feed.
type GameRow struct {
	Season   int
	Week     int
	HomeTeam string
	AwayTeam string
}

// NFLStatsClient fetches weekly player statistics and schedules from the
// public stat release feed (CSV, gzipped for the weekly files).
type NFLStatsClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

func NewNFLStatsClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) *NFLStatsClient {
	return &NFLStatsClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

func (c *NFLStatsClient) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}

// FetchWeekly downloads one season of per-player-week stat rows.
func (c *NFLStatsClient) FetchWeekly(ctx context.Context, season int) (*dataset.Frame, error) {
	url := fmt.Sprintf("%s/player_stats/player_stats_%d.csv.gz", c.baseURL, season)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to open weekly stats stream: %w", err)
	}
	defer zr.Close()

	frame, err := parseCSVFrame(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weekly stats for %d: %w", season, err)
	}

	c.logger.WithFields(logrus.Fields{
		"provider": "nflverse",
		"season":   season,
		"rows":     frame.NumRows(),
	}).Info("Fetched weekly stats")
	return frame, nil
}

// FetchSchedule downloads one season's game schedule.
func (c *NFLStatsClient) FetchSchedule(ctx context.Context, season int) ([]GameRow, error) {
	url := fmt.Sprintf("%s/schedules/games_%d.csv", c.baseURL, season)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"season", "week", "home_team", "away_team"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("schedule feed missing column %q", required)
		}
	}

	var games []GameRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read schedule row: %w", err)
		}
		seasonVal, err := strconv.Atoi(record[col["season"]])
		if err != nil {
			continue
		}
		weekVal, err := strconv.Atoi(record[col["week"]])
		if err != nil {
			continue
		}
		games = append(games, GameRow{
			Season:   seasonVal,
			Week:     weekVal,
			HomeTeam: NormalizeTeam(record[col["home_team"]]),
			AwayTeam: NormalizeTeam(record[col["away_team"]]),
		})
	}

	c.logger.WithFields(logrus.Fields{
		"provider": "nflverse",
		"season":   season,
		"games":    len(games),
	}).Info("Fetched schedule")
	return games, nil
}

// parseCSVFrame reads a CSV stream into a frame. Identity columns stay
// strings; other columns are parsed as floats with failures recorded as null.
func parseCSVFrame(r io.Reader) (*dataset.Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	records := make([][]string, 0, 1024)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		records = append(records, record)
	}

	frame := dataset.NewFrame()
	n := len(records)
	for j, name := range header {
		cell := func(i int) (string, bool) {
			if j >= len(records[i]) {
				return "", false
			}
			v := strings.TrimSpace(records[i][j])
			return v, v != "" && v != "NA"
		}
		if identityColumns[name] {
			values := make([]string, n)
			null := make([]bool, n)
			for i := 0; i < n; i++ {
				v, ok := cell(i)
				if !ok {
					null[i] = true
					continue
				}
				if name == "recent_team" || name == "team" || name == "opponent_team" {
					v = NormalizeTeam(v)
				}
				values[i] = v
			}
			if err := frame.AddStrings(name, values, null); err != nil {
				return nil, err
			}
			continue
		}
		values := make([]float64, n)
		null := make([]bool, n)
		for i := 0; i < n; i++ {
			raw, ok := cell(i)
			if !ok {
				null[i] = true
				continue
			}
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				null[i] = true
				continue
			}
			values[i] = f
		}
		if err := frame.AddFloats(name, values, null); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
