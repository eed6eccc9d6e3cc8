package records

import "strings"

const (
	// Delimiter separates path segments in a record name.
	Delimiter = ">"
	// Separator is the canonical delimiter including surrounding spaces.
	Separator = " " + Delimiter + " "
)

// SplitPath splits a record name into trimmed, root-to-leaf segments.
func SplitPath(name string) []string {
	parts := strings.Split(name, Delimiter)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

// JoinPath joins segments with the canonical separator.
func JoinPath(segments []string) string {
	return strings.Join(segments, Separator)
}

// CanonicalPath rewrites name so that every segment is trimmed and
// separated by exactly " > ".
func CanonicalPath(name string) string {
	return JoinPath(SplitPath(name))
}

// LastSegment returns the leaf segment of name.
func LastSegment(name string) string {
	segments := SplitPath(name)
	return segments[len(segments)-1]
}
