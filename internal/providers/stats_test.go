package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSVFrame(t *testing.T) {
	csvData := strings.Join([]string{
		"player_id,player_name,recent_team,position,week,targets,fantasy_points_ppr",
		"p1,Alpha One,OAK,WR,1,8,17.4",
		"p2,Beta Two,KC,RB,1,NA,",
		"p3,Gamma Three,BUF,TE,1,notanumber,9.1",
	}, "\n")

	frame, err := parseCSVFrame(strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 3, frame.NumRows())

	// Identity columns stay strings, with team codes normalized
	team, ok := frame.StringAt("recent_team", 0)
	assert.True(t, ok)
	assert.Equal(t, "LV", team)

	name, ok := frame.StringAt("player_name", 1)
	assert.True(t, ok)
	assert.Equal(t, "Beta Two", name)

	// Numeric columns parse as floats; NA, empty and unparseable cells are null
	v, ok := frame.FloatAt("targets", 0)
	assert.True(t, ok)
	assert.Equal(t, 8.0, v)

	_, ok = frame.FloatAt("targets", 1)
	assert.False(t, ok, "NA must be null")
	_, ok = frame.FloatAt("fantasy_points_ppr", 1)
	assert.False(t, ok, "empty cell must be null")
	_, ok = frame.FloatAt("targets", 2)
	assert.False(t, ok, "unparseable cell must be null")

	fp, ok := frame.FloatAt("fantasy_points_ppr", 2)
	assert.True(t, ok)
	assert.InDelta(t, 9.1, fp, 1e-9)
}

func TestParseCSVFrameRaggedRows(t *testing.T) {
	csvData := "player_id,week,targets\np1,1"

	frame, err := parseCSVFrame(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Equal(t, 1, frame.NumRows())

	_, ok := frame.FloatAt("targets", 0)
	assert.False(t, ok, "short row leaves trailing columns null")
}
