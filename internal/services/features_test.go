package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridironlabs/ffpipeline/internal/dataset"
	"github.com/gridironlabs/ffpipeline/internal/models"
	"github.com/gridironlabs/ffpipeline/internal/storage"
)

// teamChangeHistory is one player over six weeks with a midseason trade:
// weeks 1-3 on NE, weeks 4-6 on MIA.
func teamChangeHistory() []weeklyRow {
	fps := []float64{10, 12, 8, 14, 9, 11}
	rows := make([]weeklyRow, 0, 6)
	for w := 1; w <= 6; w++ {
		team := "NE"
		if w >= 4 {
			team = "MIA"
		}
		rows = append(rows, weeklyRow{
			season: 2023, week: w, playerID: "p1", team: team, position: "WR",
			targets: 5, fp: fps[w-1],
		})
	}
	return rows
}

func floatAt(t *testing.T, f *dataset.Frame, col string, i int) float64 {
	t.Helper()
	v, ok := f.FloatAt(col, i)
	require.True(t, ok, "expected %s to be non-null at row %d", col, i)
	return v
}

func TestRollingMeansAtTeamChangeWeek(t *testing.T) {
	weekly := weeklyFrame(teamChangeHistory())

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 4)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	assert.Equal(t, 1.0, floatAt(t, out, "team_change", 0))
	assert.InDelta(t, 10.0, floatAt(t, out, "rolling_fp3", 0), 1e-9, "global rolling mean ignores the team change")

	_, ok := out.FloatAt("rolling_fp3_same_team", 0)
	assert.False(t, ok, "same-team window is empty at the change week")

	assert.Equal(t, 3.0, floatAt(t, out, "games_played_last3", 0))
	assert.Equal(t, 0.0, floatAt(t, out, "dnp_prev", 0))
	assert.Equal(t, 0.0, floatAt(t, out, "delta_targets", 0))
	assert.Equal(t, 14.0, floatAt(t, out, TargetColumn, 0))
}

func TestRollingMeansAfterTeamChange(t *testing.T) {
	weekly := weeklyFrame(teamChangeHistory())

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 5)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	assert.Equal(t, 0.0, floatAt(t, out, "team_change", 0))
	assert.InDelta(t, (12.0+8.0+14.0)/3.0, floatAt(t, out, "rolling_fp3", 0), 1e-9)
	assert.InDelta(t, 14.0, floatAt(t, out, "rolling_fp3_same_team", 0), 1e-9, "window restarts from the change week")
}

func TestFirstWeekRowHasNoHistory(t *testing.T) {
	weekly := weeklyFrame(teamChangeHistory())

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 1)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	_, ok := out.FloatAt("rolling_fp3", 0)
	assert.False(t, ok)
	_, ok = out.FloatAt("rolling_fp3_same_team", 0)
	assert.False(t, ok)
	_, ok = out.FloatAt("delta_targets", 0)
	assert.False(t, ok)

	assert.Equal(t, 0.0, floatAt(t, out, "team_change", 0), "a first appearance is not a team change")
	assert.Equal(t, 0.0, floatAt(t, out, "games_played_last3", 0))
	assert.Equal(t, 1.0, floatAt(t, out, "dnp_prev", 0))
}

func TestRollingSkipsNullTargets(t *testing.T) {
	rows := teamChangeHistory()
	rows[2].fpNull = true // week 3 has no recorded points
	weekly := weeklyFrame(rows)

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 4)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	assert.InDelta(t, (10.0+12.0)/2.0, floatAt(t, out, "rolling_fp3", 0), 1e-9)
}

func TestScheduleAndOpponentStrengthContext(t *testing.T) {
	weekly := weeklyFrame(teamChangeHistory())
	schedule := []models.ScheduleEntry{
		{Season: 2023, Week: 4, Team: "MIA", Opponent: "KC", Home: true},
	}
	dvp := []models.DefenseVsPos{
		{Season: 2023, Week: 4, Team: "KC", Position: "WR", DVP: 21.5},
	}

	out, err := BuildFeatureFrame(weekly, schedule, dvp, 2023, 4)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	opp, ok := out.StringAt("opp", 0)
	require.True(t, ok)
	assert.Equal(t, "KC", opp)
	assert.Equal(t, 1.0, floatAt(t, out, "home", 0))
	assert.InDelta(t, 21.5, floatAt(t, out, "opp_dvp", 0), 1e-9)
}

func TestMissingContextStaysNullNotZero(t *testing.T) {
	weekly := weeklyFrame(teamChangeHistory())

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 4)
	require.NoError(t, err)

	_, ok := out.StringAt("opp", 0)
	assert.False(t, ok)
	_, ok = out.FloatAt("home", 0)
	assert.False(t, ok)
	_, ok = out.FloatAt("opp_dvp", 0)
	assert.False(t, ok)
}

func TestOutputSortedByPlayerAndExcludesAbsentPlayers(t *testing.T) {
	rows := teamChangeHistory()
	// Second player appears in the target week, third player only earlier
	rows = append(rows,
		weeklyRow{season: 2023, week: 4, playerID: "a9", team: "KC", position: "RB", targets: 3, fp: 7},
		weeklyRow{season: 2023, week: 2, playerID: "z5", team: "BUF", position: "TE", targets: 2, fp: 4},
	)
	weekly := weeklyFrame(rows)

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 4)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	first, _ := out.StringAt("player_id", 0)
	second, _ := out.StringAt("player_id", 1)
	assert.Equal(t, "a9", first)
	assert.Equal(t, "p1", second)
}

func TestLaterWeeksDoNotLeakIntoFeatures(t *testing.T) {
	weekly := weeklyFrame(teamChangeHistory())

	out, err := BuildFeatureFrame(weekly, nil, nil, 2023, 2)
	require.NoError(t, err)
	require.Equal(t, 1, out.NumRows())

	// Only week 1 is behind us
	assert.InDelta(t, 10.0, floatAt(t, out, "rolling_fp3", 0), 1e-9)
	assert.Equal(t, 1.0, floatAt(t, out, "games_played_last3", 0))
}

func TestMissingIdentityColumnsRejected(t *testing.T) {
	f := dataset.NewFrame()
	must(f.AddFloats("season", []float64{2023}, nil))
	must(f.AddFloats("week", []float64{1}, nil))

	_, err := BuildFeatureFrame(f, nil, nil, 2023, 1)
	assert.ErrorIs(t, err, ErrMissingIdentityColumns)
}

func TestBuildFeaturesIdempotentBytes(t *testing.T) {
	blob := storage.NewMemBlobStore()
	weekly := weeklyFrame(teamChangeHistory())
	encoded, err := weekly.Encode()
	require.NoError(t, err)
	require.NoError(t, blob.Put(storage.RawBucket, storage.RawWeeklyPath(2023), encoded))

	svc := NewFeatureService(blob, &fakeDims{}, nil)

	res, err := svc.BuildFeatures(2023, 4)
	require.NoError(t, err)
	require.True(t, res.OK)
	first, err := blob.Get(storage.FeaturesBucket, storage.FeaturesPath(2023, 4))
	require.NoError(t, err)

	res, err = svc.BuildFeatures(2023, 4)
	require.NoError(t, err)
	require.True(t, res.OK)
	second, err := blob.Get(storage.FeaturesBucket, storage.FeaturesPath(2023, 4))
	require.NoError(t, err)

	assert.Equal(t, first, second, "rebuilding the same week must be byte-identical")
}

func TestBuildFeaturesReportsMissingRawData(t *testing.T) {
	svc := NewFeatureService(storage.NewMemBlobStore(), &fakeDims{}, nil)

	res, err := svc.BuildFeatures(2023, 4)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, ReasonNoData, res.Reason)
}
