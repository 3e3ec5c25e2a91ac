package capability

import (
	"regexp"
	"strconv"
	"strings"
)

var leadingVersion = regexp.MustCompile(`^\d+(\.\d+)?`)

// parseVersion reads the decimal number at the start of s: digits, then
// optionally one dot followed by more digits. Anything after the number is
// ignored, so "1.5-mini" parses as 1.5.
func parseVersion(s string) (float64, bool) {
	m := leadingVersion.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// HighestVersioned returns the identifier whose name, after a
// case-insensitive prefix, carries the largest leading decimal number.
// Identifiers without a digit right after the prefix are skipped. On ties
// the first identifier in input order wins. The second return is false when
// no identifier is eligible.
func HighestVersioned(ids []string, prefix string) (string, bool) {
	prefix = strings.ToLower(prefix)

	var (
		best    string
		bestVer float64
		found   bool
	)
	for _, id := range ids {
		lower := strings.ToLower(id)
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		v, ok := parseVersion(lower[len(prefix):])
		if !ok {
			continue
		}
		if !found || v > bestVer {
			best, bestVer, found = id, v, true
		}
	}
	return best, found
}
