package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/plan"
)

func TestRenderGantt(t *testing.T) {
	b := sampleBundle()
	tl, err := plan.Schedule(b.Interventions, b.Dependencies, 12)
	require.NoError(t, err)

	out := RenderGantt(b, tl)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "10")

	bars := map[string]int{}
	for _, line := range lines[1:] {
		for _, iv := range b.Interventions {
			if strings.Contains(line, iv.Name) {
				bars[iv.ID] = strings.Count(line, ganttFill)
			}
		}
	}
	for _, iv := range b.Interventions {
		e, ok := tl.Entry(iv.ID)
		require.True(t, ok)
		assert.Equal(t, e.Duration, bars[iv.ID], iv.ID)
	}
	assert.True(t, strings.HasSuffix(lines[3], "8-17"))
}

func TestWeekRuler(t *testing.T) {
	assert.Equal(t, "1   5    10", weekRuler(11))
	assert.Equal(t, "1   ", weekRuler(4))
}
