package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTeam(t *testing.T) {
	cases := map[string]string{
		"OAK":  "LV",
		"STL":  "LA",
		"SD":   "LAC",
		"WSH":  "WAS",
		"KC":   "KC",
		" BUF": "BUF",
		"":     "",
		"  ":   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTeam(in), "input %q", in)
	}
}
