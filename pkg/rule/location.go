package rule

import "fmt"

// Location is a position in a rule file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns "file:line:column", or "<unknown>" without a file.
func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// IsValid reports whether the location names a file and line.
func (l Location) IsValid() bool {
	return l.File != "" && l.Line > 0
}
