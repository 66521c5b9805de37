package bluegreen

import "strings"

// Color tags one of the two rotating index slots for an alias.
type Color string

const (
	Blue    Color = "blue"
	Green   Color = "green"
	NoColor Color = ""
)

// Opposite returns the other slot. The opposite of no color is blue,
// matching the default for a first deployment.
func (c Color) Opposite() Color {
	switch c {
	case Blue:
		return Green
	case Green:
		return Blue
	default:
		return Blue
	}
}

func (c Color) Valid() bool {
	return c == Blue || c == Green
}

// ExtractColor recovers the color from an index name by substring match.
func ExtractColor(index string) Color {
	switch {
	case strings.Contains(index, "_blue_"):
		return Blue
	case strings.Contains(index, "_green_"):
		return Green
	default:
		return NoColor
	}
}
