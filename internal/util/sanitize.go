package util

const sanitizeMaxLen = 100

// SanitizeName makes a title safe for use as a directory or file name.
// Restore-time file matching re-applies this transform to attachment
// metadata, so the exact replacement set and truncation length must stay
// stable across versions.
func SanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '<', '>', '"', '|', '?', '*':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
		if len(out) == sanitizeMaxLen {
			break
		}
	}
	return string(out)
}
