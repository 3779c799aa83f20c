package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPlayersExactKey(t *testing.T) {
	targets := []MatchTarget{
		{PlayerID: "00-001", Name: "Justin Jefferson", Position: "WR", Team: "MIN"},
		{PlayerID: "00-002", Name: "Justin Fields", Position: "QB", Team: "CHI"},
	}
	candidates := []MatchCandidate{
		{SleeperID: "s1", Name: "Justin Jefferson", Position: "WR", Team: "MIN"},
	}

	res := MatchPlayers(candidates, targets)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, MatchPair{SleeperID: "s1", PlayerID: "00-001"}, res.Pairs[0])
	assert.Empty(t, res.Unmatched)
}

func TestMatchPlayersCaseAndWhitespaceInsensitiveName(t *testing.T) {
	targets := []MatchTarget{
		{PlayerID: "00-001", Name: "justin jefferson", Position: "wr", Team: "MIN"},
	}
	candidates := []MatchCandidate{
		{SleeperID: "s1", Name: " Justin Jefferson ", Position: "WR", Team: "MIN"},
	}

	res := MatchPlayers(candidates, targets)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "00-001", res.Pairs[0].PlayerID)
}

func TestMatchPlayersFallsBackToTeamlessTargets(t *testing.T) {
	targets := []MatchTarget{
		{PlayerID: "00-003", Name: "Saquon Barkley", Position: "RB", Team: ""},
	}
	candidates := []MatchCandidate{
		{SleeperID: "s2", Name: "Saquon Barkley", Position: "RB", Team: "PHI"},
	}

	res := MatchPlayers(candidates, targets)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "00-003", res.Pairs[0].PlayerID)
}

func TestMatchPlayersNoTeamBleedAcrossTeams(t *testing.T) {
	targets := []MatchTarget{
		{PlayerID: "00-004", Name: "Mike Williams", Position: "WR", Team: "LAC"},
	}
	candidates := []MatchCandidate{
		{SleeperID: "s3", Name: "Mike Williams", Position: "WR", Team: "NYJ"},
	}

	// Same name and position but a different team, and no teamless fallback
	res := MatchPlayers(candidates, targets)
	assert.Empty(t, res.Pairs)
	require.Len(t, res.Unmatched, 1)
	assert.Equal(t, "s3", res.Unmatched[0].SleeperID)
}

func TestMatchPlayersDeterministicOnDuplicateKeys(t *testing.T) {
	targets := []MatchTarget{
		{PlayerID: "00-zzz", Name: "Josh Allen", Position: "LB", Team: "JAX"},
		{PlayerID: "00-aaa", Name: "Josh Allen", Position: "LB", Team: "JAX"},
	}
	candidates := []MatchCandidate{
		{SleeperID: "s4", Name: "Josh Allen", Position: "LB", Team: "JAX"},
	}

	for i := 0; i < 10; i++ {
		res := MatchPlayers(candidates, targets)
		require.Len(t, res.Pairs, 1)
		assert.Equal(t, "00-aaa", res.Pairs[0].PlayerID, "smallest player id wins every run")
	}
}

func TestMatchPlayersSkipsIncompleteCandidates(t *testing.T) {
	targets := []MatchTarget{
		{PlayerID: "00-005", Name: "Travis Kelce", Position: "TE", Team: "KC"},
	}
	candidates := []MatchCandidate{
		{SleeperID: "s5", Name: "", Position: "TE", Team: "KC"},
		{SleeperID: "s6", Name: "Travis Kelce", Position: "", Team: "KC"},
	}

	res := MatchPlayers(candidates, targets)
	assert.Empty(t, res.Pairs)
	assert.Len(t, res.Unmatched, 2)
}
