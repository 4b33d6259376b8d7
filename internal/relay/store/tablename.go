package store

import "strings"

// DeriveTableName is the universal pure function mapping a pipeline's
// display name to the SQL identifier used to register its artifacts as a
// view: lowercase, spaces and hyphens become underscores, anything left
// that isn't alphanumeric or underscore is stripped, and a leading digit
// gets a "t_" prefix.
func DeriveTableName(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('_')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		default:
			// strip
		}
	}

	derived := b.String()
	if derived != "" && derived[0] >= '0' && derived[0] <= '9' {
		derived = "t_" + derived
	}
	return derived
}
