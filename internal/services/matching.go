package services

import (
	"sort"
	"strings"
)

// MatchCandidate is one platform player to be linked to the players dimension.
type MatchCandidate struct {
	SleeperID string
	Name      string
	Position  string
	Team      string
}

// MatchTarget is one row of the players dimension eligible for linking.
type MatchTarget struct {
	PlayerID string
	Name     string
	Position string
	Team     string
}

// MatchPair links one platform id to one dimension player id.
type MatchPair struct {
	SleeperID string
	PlayerID  string
}

// MatchResult carries successful links plus the residual of candidates that
// found no target. Failures are data, not suppressed exceptions.
type MatchResult struct {
	Pairs     []MatchPair
	Unmatched []MatchCandidate
}

func matchKey(name, position, team string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToUpper(strings.TrimSpace(position)) + "|" + team
}

// MatchPlayers links candidates to targets on (name, position, team), falling
// back to (name, position) against targets without a team. When several
// targets share a key the lexicographically smallest player id wins, keeping
// the result deterministic. Pure function: no I/O, no side effects.
func MatchPlayers(candidates []MatchCandidate, targets []MatchTarget) MatchResult {
	withTeam := make(map[string][]string)
	noTeam := make(map[string][]string)
	for _, t := range targets {
		if t.Name == "" || t.Position == "" {
			continue
		}
		if t.Team != "" {
			key := matchKey(t.Name, t.Position, t.Team)
			withTeam[key] = append(withTeam[key], t.PlayerID)
		} else {
			key := matchKey(t.Name, t.Position, "")
			noTeam[key] = append(noTeam[key], t.PlayerID)
		}
	}
	for _, ids := range withTeam {
		sort.Strings(ids)
	}
	for _, ids := range noTeam {
		sort.Strings(ids)
	}

	var result MatchResult
	for _, c := range candidates {
		if c.Name == "" || c.Position == "" {
			result.Unmatched = append(result.Unmatched, c)
			continue
		}
		var playerID string
		if c.Team != "" {
			if ids := withTeam[matchKey(c.Name, c.Position, c.Team)]; len(ids) > 0 {
				playerID = ids[0]
			}
		}
		if playerID == "" {
			if ids := noTeam[matchKey(c.Name, c.Position, "")]; len(ids) > 0 {
				playerID = ids[0]
			}
		}
		if playerID == "" {
			result.Unmatched = append(result.Unmatched, c)
			continue
		}
		result.Pairs = append(result.Pairs, MatchPair{SleeperID: c.SleeperID, PlayerID: playerID})
	}
	return result
}
