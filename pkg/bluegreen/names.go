package bluegreen

import (
	"fmt"
	"regexp"
	"time"
)

// Timestamps sort lexicographically in creation order.
const (
	timestampLayout = "20060102150405"
	// Base names (no color) carry millisecond precision.
	baseTimestampLayout = "20060102150405.000"
)

var indexNameRe = regexp.MustCompile(`^(.+)_(blue|green)_(\d{14})$`)

// IndexName is the parsed form of a deployment-managed index name.
type IndexName struct {
	Alias     string
	Color     Color
	Timestamp string
}

// GenerateName composes "{alias}_{color}_{YYYYMMDDHHMMSS}".
func GenerateName(alias string, color Color, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", alias, color, now.Format(timestampLayout))
}

// GenerateBaseName composes "{alias}_{YYYYMMDDHHMMSSfff}" for indices
// outside the blue/green rotation.
func GenerateBaseName(alias string, now time.Time) string {
	ts := now.Format(baseTimestampLayout)
	// strip the fractional separator, keeping 17 digits
	return fmt.Sprintf("%s_%s%s", alias, ts[:14], ts[15:])
}

// ParseIndexName parses a "{alias}_{color}_{timestamp}" name. Legacy
// dash-separated names are rejected.
func ParseIndexName(name string) (IndexName, bool) {
	m := indexNameRe.FindStringSubmatch(name)
	if m == nil {
		return IndexName{}, false
	}
	return IndexName{Alias: m[1], Color: Color(m[2]), Timestamp: m[3]}, true
}

// ParseTimestamp converts the 14-digit timestamp back to wall-clock time.
func (n IndexName) ParseTimestamp() (time.Time, bool) {
	t, err := time.Parse(timestampLayout, n.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
