package components

import (
	"fmt"
	"math"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/nextlesson/internal/spacedrep"
	"github.com/abhisek/nextlesson/internal/ui/theme"
)

// minCells keeps very narrow meters readable.
const minCells = 4

// Meter draws a 0..1 value as a fixed-width bar followed by the value.
// With State set the filled part takes that review state's colour.
type Meter struct {
	Label string
	Value float64
	State spacedrep.DueState
	Width int
}

// NewMeter creates a meter without review state.
func NewMeter(label string, value float64, width int) Meter {
	return Meter{Label: label, Value: value, Width: width}
}

// WithState returns a copy coloured for s.
func (m Meter) WithState(s spacedrep.DueState) Meter {
	m.State = s
	return m
}

// View renders the meter in exactly Width cells unless the bar would drop
// below minCells.
func (m Meter) View() string {
	var b strings.Builder
	if m.Label != "" {
		b.WriteString(theme.Body.Render(m.Label))
		b.WriteString("  ")
	}

	v := math.Max(0, math.Min(1, m.Value))
	value := fmt.Sprintf(" %.2f", v)

	cells := m.Width - lipgloss.Width(b.String()) - len(value)
	if cells < minCells {
		cells = minCells
	}
	filled := int(math.Round(v * float64(cells)))

	b.WriteString(fillStyle(m.State).Render(strings.Repeat("█", filled)))
	b.WriteString(theme.ProgressEmpty.Render(strings.Repeat("░", cells-filled)))
	b.WriteString(theme.Subtitle.Render(value))
	return b.String()
}

func fillStyle(s spacedrep.DueState) lipgloss.Style {
	switch s {
	case spacedrep.Critical:
		return theme.Critical
	case spacedrep.Due:
		return theme.Due
	case spacedrep.NotDue:
		return theme.Reason
	default:
		return theme.ProgressFilled
	}
}
