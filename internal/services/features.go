package services

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/storage"
	"github.com/gridironlabs/ffpipeline/pkg/logger"
)

// TargetColumn is the supervised target: realized PPR fantasy points.
const TargetColumn = "fantasy_points_ppr"

// BaseNumericCandidates are the raw usage/efficiency columns carried into the
// feature table when the source provides them. Absent columns are omitted,
// never fabricated. Kept in sync with the trainer's feature-column selection.
var BaseNumericCandidates = []string{
	"attempts", "completions", "pass_attempts", "passing_yards", "passing_tds", "interceptions",
	"rush_attempts", "rushing_yards", "rushing_tds",
	"targets", "receptions", "receiving_yards", "receiving_tds",
	"snap_share", "route_participation", "air_yards",
}

// EngineeredColumns are the signals computed here, in their fixed order.
var EngineeredColumns = []string{
	"opp_dvp",
	"team_change",
	"rolling_fp3",
	"rolling_fp3_same_team",
	"games_played_last3",
	"dnp_prev",
	"delta_snap", "delta_targets", "delta_rush_att",
}

// snapLikeColumns imply activity state when present, tried in order. When none
// exists a proxy is synthesized from usage counts.
var snapLikeColumns = []string{"snap_share", "snaps", "offensive_snaps"}

var requiredIdentityColumns = []string{"season", "week", "player_id", "team", "position"}

// DimReader provides the schedule and opponent-strength context for one week.
type DimReader interface {
	ScheduleWeek(season, week int) ([]models.ScheduleEntry, error)
	DefenseVsPosWeek(season, week int) ([]models.DefenseVsPos, error)
}

// FeatureService materializes one feature table per (season, week).
type FeatureService struct {
	blob   storage.BlobStore
	dims   DimReader
	logger *logrus.Logger
}

func NewFeatureService(blob storage.BlobStore, dims DimReader, log *logrus.Logger) *FeatureService {
	return &FeatureService{blob: blob, dims: dims, logger: log}
}

// BuildFeatures produces and persists the feature table for (season, week).
// Re-running for the same key overwrites the table deterministically.
func (s *FeatureService) BuildFeatures(season, week int) (*StageResult, error) {
	raw, err := s.blob.Get(storage.RawBucket, storage.RawWeeklyPath(season))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return failure(ReasonNoData, season, week), nil
		}
		return nil, fmt.Errorf("failed to load raw weekly snapshot: %w", err)
	}
	weekly, err := dataset.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode raw weekly snapshot: %w", err)
	}

	schedule, err := s.dims.ScheduleWeek(season, week)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	dvp, err := s.dims.DefenseVsPosWeek(season, week)
	if err != nil {
		return nil, fmt.Errorf("failed to load defense-vs-pos: %w", err)
	}

	out, err := BuildFeatureFrame(weekly, schedule, dvp, season, week)
	if err != nil {
		return nil, err
	}

	encoded, err := out.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature table: %w", err)
	}
	path := storage.FeaturesPath(season, week)
	if err := s.blob.Put(storage.FeaturesBucket, path, encoded); err != nil {
		return nil, fmt.Errorf("failed to store feature table: %w", err)
	}

	logger.WithStageWeek("build_features", season, week).WithFields(logrus.Fields{
		"rows": out.NumRows(),
		"cols": len(out.Columns()),
		"path": storage.FeaturesBucket + "/" + path,
	}).Info("Feature table written")

	return &StageResult{
		OK:     true,
		Season: season,
		Week:   week,
		Counts: map[string]int{"rows": out.NumRows(), "columns": len(out.Columns())},
	}, nil
}

// playerHistory indexes one player's rows in week order.
type playerHistory struct {
	playerID string
	rows     []int // frame row indices, ascending week
}

// BuildFeatureFrame computes the engineered feature table for the target week
// from the season's weekly rows, the week's schedule and the week's
// opponent-strength entries. Rolling and delta signals use strictly prior
// weeks only. Output rows are sorted by player id so repeated builds are
// byte-identical.
func BuildFeatureFrame(weekly *dataset.Frame, schedule []models.ScheduleEntry, dvp []models.DefenseVsPos, season, week int) (*dataset.Frame, error) {
	var missing []string
	for _, c := range requiredIdentityColumns {
		if !weekly.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingIdentityColumns, missing)
	}

	// Schema negotiation: the available numeric column set is fixed up front
	availableNumeric := make([]string, 0, len(BaseNumericCandidates))
	for _, c := range BaseNumericCandidates {
		if weekly.HasColumn(c) {
			availableNumeric = append(availableNumeric, c)
		}
	}
	hasTarget := weekly.HasColumn(TargetColumn)

	// Activity proxy: first snap-like column present, else synthesized usage
	snapColumn := ""
	for _, c := range snapLikeColumns {
		if weekly.HasColumn(c) {
			snapColumn = c
			break
		}
	}
	proxyAt := func(i int) (float64, bool) {
		if snapColumn != "" {
			return weekly.FloatAt(snapColumn, i)
		}
		var sum float64
		for _, c := range []string{"targets", "rush_attempts", "pass_attempts"} {
			if v, ok := weekly.FloatAt(c, i); ok {
				sum += v
			}
		}
		return sum, true
	}

	histories := collectHistories(weekly, season, week)

	scheduleByTeam := make(map[string]models.ScheduleEntry, len(schedule))
	for _, e := range schedule {
		scheduleByTeam[e.Team] = e
	}
	dvpByKey := make(map[string]float64, len(dvp))
	for _, d := range dvp {
		dvpByKey[d.Team+"|"+d.Position] = d.DVP
	}

	b := newFeatureRowBuffer()
	for _, h := range histories {
		computePlayerRows(weekly, h, week, proxyAt, scheduleByTeam, dvpByKey, hasTarget, availableNumeric, season, b)
	}

	return b.toFrame(availableNumeric, hasTarget)
}

// collectHistories groups row indices per player for weeks up to and
// including the target, ordered by week, players sorted by id.
func collectHistories(weekly *dataset.Frame, season, week int) []playerHistory {
	byPlayer := make(map[string][]int)
	for i := 0; i < weekly.NumRows(); i++ {
		s, ok := weekly.FloatAt("season", i)
		if !ok || int(s) != season {
			continue
		}
		w, ok := weekly.FloatAt("week", i)
		if !ok || int(w) > week {
			continue
		}
		pid, ok := weekly.StringAt("player_id", i)
		if !ok || pid == "" {
			continue
		}
		byPlayer[pid] = append(byPlayer[pid], i)
	}

	ids := make([]string, 0, len(byPlayer))
	for pid := range byPlayer {
		ids = append(ids, pid)
	}
	sort.Strings(ids)

	out := make([]playerHistory, 0, len(ids))
	for _, pid := range ids {
		rows := byPlayer[pid]
		sort.SliceStable(rows, func(a, b int) bool {
			wa, _ := weekly.FloatAt("week", rows[a])
			wb, _ := weekly.FloatAt("week", rows[b])
			return wa < wb
		})
		out = append(out, playerHistory{playerID: pid, rows: rows})
	}
	return out
}

// computePlayerRows walks one player's history in week order, maintaining the
// rolling state, and emits a feature row when it reaches the target week.
func computePlayerRows(
	weekly *dataset.Frame,
	h playerHistory,
	targetWeek int,
	proxyAt func(int) (float64, bool),
	scheduleByTeam map[string]models.ScheduleEntry,
	dvpByKey map[string]float64,
	hasTarget bool,
	availableNumeric []string,
	season int,
	b *featureRowBuffer,
) {
	type weekState struct {
		fp      float64
		fpValid bool
		proxy   float64
		proxyOK bool
	}
	var (
		prior        []weekState // full history, one entry per prior week
		sameTeamWin  []float64   // target values since the last team change
		prevTeam     string
		havePrevTeam bool
	)

	for _, i := range h.rows {
		w, _ := weekly.FloatAt("week", i)
		team, teamOK := weekly.StringAt("team", i)

		teamChange := false
		if havePrevTeam && teamOK && team != prevTeam {
			teamChange = true
		}
		// Reset before emitting: the change week reflects zero accumulated
		// same-team history
		if teamChange {
			sameTeamWin = sameTeamWin[:0]
		}

		if int(w) == targetWeek {
			row := featureRow{playerID: h.playerID, season: season, week: targetWeek}

			row.team, row.teamValid = team, teamOK
			row.position, row.positionValid = weekly.StringAt("position", i)

			if entry, ok := scheduleByTeam[team]; teamOK && ok {
				row.opp, row.oppValid = entry.Opponent, true
				if entry.Home {
					row.home = 1.0
				}
				row.homeValid = true
			}
			if row.oppValid && row.positionValid {
				if v, ok := dvpByKey[row.opp+"|"+row.position]; ok {
					row.oppDVP, row.oppDVPValid = v, true
				}
			}

			if teamChange {
				row.teamChange = 1.0
			}

			// Global rolling mean over the last 3 prior weeks, skipping nulls
			var sum float64
			var count int
			for k := len(prior) - 1; k >= 0 && k >= len(prior)-3; k-- {
				if prior[k].fpValid {
					sum += prior[k].fp
					count++
				}
			}
			if count > 0 {
				row.rollingFP3, row.rollingFP3Valid = sum/float64(count), true
			}

			// Same-team rolling mean over values accumulated since the change
			if n := len(sameTeamWin); n > 0 {
				start := n - 3
				if start < 0 {
					start = 0
				}
				var s float64
				for _, v := range sameTeamWin[start:] {
					s += v
				}
				row.rollingFP3SameTeam, row.rollingFP3SameTeamValid = s/float64(n-start), true
			}

			// DNP flag from the immediately preceding week's activity proxy
			row.dnpPrev = 1.0
			if len(prior) > 0 {
				last := prior[len(prior)-1]
				if last.proxyOK && last.proxy > 0 {
					row.dnpPrev = 0.0
				}
			}

			// Games played among up to 3 prior weeks
			for k := len(prior) - 1; k >= 0 && k >= len(prior)-3; k-- {
				if prior[k].proxyOK && prior[k].proxy > 0 {
					row.gamesPlayedLast3++
				}
			}

			// Usage deltas versus the immediately preceding week
			row.deltaSnap, row.deltaSnapValid = deltaVsPrev(weekly, "snap_share", i, h.rows, len(prior))
			row.deltaTargets, row.deltaTargetsValid = deltaVsPrev(weekly, "targets", i, h.rows, len(prior))
			row.deltaRushAtt, row.deltaRushAttValid = deltaVsPrev(weekly, "rush_attempts", i, h.rows, len(prior))

			row.numeric = make([]float64, len(availableNumeric))
			row.numericValid = make([]bool, len(availableNumeric))
			for j, c := range availableNumeric {
				row.numeric[j], row.numericValid[j] = weekly.FloatAt(c, i)
			}
			if hasTarget {
				row.target, row.targetValid = weekly.FloatAt(TargetColumn, i)
			}

			b.append(row)
		}

		// Advance state with the current week
		state := weekState{}
		if hasTarget {
			state.fp, state.fpValid = weekly.FloatAt(TargetColumn, i)
		}
		state.proxy, state.proxyOK = proxyAt(i)
		prior = append(prior, state)
		if state.fpValid {
			sameTeamWin = append(sameTeamWin, state.fp)
		}
		if teamOK {
			prevTeam = team
			havePrevTeam = true
		}
	}
}

// deltaVsPrev computes current minus previous week for one usage column.
// Null when either side is missing or there is no prior week.
func deltaVsPrev(weekly *dataset.Frame, column string, rowIdx int, rows []int, priorCount int) (float64, bool) {
	if !weekly.HasColumn(column) || priorCount == 0 {
		return 0, false
	}
	cur, okCur := weekly.FloatAt(column, rowIdx)
	prev, okPrev := weekly.FloatAt(column, rows[priorCount-1])
	if !okCur || !okPrev {
		return 0, false
	}
	return cur - prev, true
}

// featureRow is one output row before columnar assembly.
type featureRow struct {
	playerID string
	season   int
	week     int

	team, position, opp                string
	teamValid, positionValid, oppValid bool

	home        float64
	homeValid   bool
	oppDVP      float64
	oppDVPValid bool
	teamChange  float64

	rollingFP3, rollingFP3SameTeam float64
	rollingFP3Valid                bool
	rollingFP3SameTeamValid        bool

	gamesPlayedLast3 float64
	dnpPrev          float64

	deltaSnap, deltaTargets, deltaRushAtt                float64
	deltaSnapValid, deltaTargetsValid, deltaRushAttValid bool

	numeric      []float64
	numericValid []bool
	target       float64
	targetValid  bool
}

type featureRowBuffer struct {
	rows []featureRow
}

func newFeatureRowBuffer() *featureRowBuffer {
	return &featureRowBuffer{}
}

func (b *featureRowBuffer) append(row featureRow) {
	b.rows = append(b.rows, row)
}

// toFrame assembles the fixed, versioned column set: identity and context
// columns, engineered columns, available raw numeric columns, then the target
// when present.
func (b *featureRowBuffer) toFrame(availableNumeric []string, hasTarget bool) (*dataset.Frame, error) {
	n := len(b.rows)
	out := dataset.NewFrame()

	floats := func(get func(featureRow) (float64, bool)) ([]float64, []bool) {
		values := make([]float64, n)
		null := make([]bool, n)
		for i, r := range b.rows {
			v, ok := get(r)
			values[i] = v
			null[i] = !ok
		}
		return values, null
	}
	strCol := func(get func(featureRow) (string, bool)) ([]string, []bool) {
		values := make([]string, n)
		null := make([]bool, n)
		for i, r := range b.rows {
			v, ok := get(r)
			values[i] = v
			null[i] = !ok
		}
		return values, null
	}

	v, nl := floats(func(r featureRow) (float64, bool) { return float64(r.season), true })
	if err := out.AddFloats("season", v, nl); err != nil {
		return nil, err
	}
	v, nl = floats(func(r featureRow) (float64, bool) { return float64(r.week), true })
	if err := out.AddFloats("week", v, nl); err != nil {
		return nil, err
	}
	sv, nl := strCol(func(r featureRow) (string, bool) { return r.playerID, true })
	if err := out.AddStrings("player_id", sv, nl); err != nil {
		return nil, err
	}
	sv, nl = strCol(func(r featureRow) (string, bool) { return r.team, r.teamValid })
	if err := out.AddStrings("team", sv, nl); err != nil {
		return nil, err
	}
	sv, nl = strCol(func(r featureRow) (string, bool) { return r.position, r.positionValid })
	if err := out.AddStrings("position", sv, nl); err != nil {
		return nil, err
	}
	sv, nl = strCol(func(r featureRow) (string, bool) { return r.opp, r.oppValid })
	if err := out.AddStrings("opp", sv, nl); err != nil {
		return nil, err
	}
	v, nl = floats(func(r featureRow) (float64, bool) { return r.home, r.homeValid })
	if err := out.AddFloats("home", v, nl); err != nil {
		return nil, err
	}

	engineered := []struct {
		name string
		get  func(featureRow) (float64, bool)
	}{
		{"opp_dvp", func(r featureRow) (float64, bool) { return r.oppDVP, r.oppDVPValid }},
		{"team_change", func(r featureRow) (float64, bool) { return r.teamChange, true }},
		{"rolling_fp3", func(r featureRow) (float64, bool) { return r.rollingFP3, r.rollingFP3Valid }},
		{"rolling_fp3_same_team", func(r featureRow) (float64, bool) { return r.rollingFP3SameTeam, r.rollingFP3SameTeamValid }},
		{"games_played_last3", func(r featureRow) (float64, bool) { return r.gamesPlayedLast3, true }},
		{"dnp_prev", func(r featureRow) (float64, bool) { return r.dnpPrev, true }},
		{"delta_snap", func(r featureRow) (float64, bool) { return r.deltaSnap, r.deltaSnapValid }},
		{"delta_targets", func(r featureRow) (float64, bool) { return r.deltaTargets, r.deltaTargetsValid }},
		{"delta_rush_att", func(r featureRow) (float64, bool) { return r.deltaRushAtt, r.deltaRushAttValid }},
	}
	for _, col := range engineered {
		v, nl = floats(col.get)
		if err := out.AddFloats(col.name, v, nl); err != nil {
			return nil, err
		}
	}

	for j, name := range availableNumeric {
		j := j
		v, nl = floats(func(r featureRow) (float64, bool) { return r.numeric[j], r.numericValid[j] })
		if err := out.AddFloats(name, v, nl); err != nil {
			return nil, err
		}
	}

	if hasTarget {
		v, nl = floats(func(r featureRow) (float64, bool) { return r.target, r.targetValid })
		if err := out.AddFloats(TargetColumn, v, nl); err != nil {
			return nil, err
		}
	}
	return out, nil
}
