package providers

import "strings"

// teamAlias maps historical and vendor-specific team codes onto the codes the
// dimension tables use. Relocated franchises keep their current code.
var teamAlias = map[string]string{
	"OAK": "LV",
	"STL": "LA",
	"SD":  "LAC",
	"WSH": "WAS",
}

// NormalizeTeam maps a raw team code to its canonical form. Empty input stays
// empty so callers can keep "no team" distinct from a real code.
func NormalizeTeam(team string) string {
	t := strings.TrimSpace(team)
	if t == "" {
		return ""
	}
	if canonical, ok := teamAlias[t]; ok {
		return canonical
	}
	return t
}
