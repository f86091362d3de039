package errors

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"mercator-hq/fre/pkg/rule"
)

// ExtractContext returns the lines around location from the file on disk,
// with the offending line marked. It returns "" when the file is unreadable.
func ExtractContext(location rule.Location, contextLines int) string {
	if !location.IsValid() {
		return ""
	}
	data, err := os.ReadFile(location.File)
	if err != nil {
		return ""
	}
	return ExtractContextFrom(data, location, contextLines)
}

// ExtractContextFrom is ExtractContext over in-memory source.
func ExtractContextFrom(src []byte, location rule.Location, contextLines int) string {
	if location.Line <= 0 {
		return ""
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(src))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if scanner.Err() != nil || location.Line > len(lines) {
		return ""
	}

	errorLine := location.Line - 1
	start := max(errorLine-contextLines, 0)
	end := min(errorLine+contextLines, len(lines)-1)
	width := len(fmt.Sprint(end + 1))

	var sb strings.Builder
	for i := start; i <= end; i++ {
		prefix := "  "
		if i == errorLine {
			prefix = "->"
		}
		fmt.Fprintf(&sb, "%s %*d | %s\n", prefix, width, i+1, lines[i])
		if i == errorLine && location.Column > 0 {
			fmt.Fprintf(&sb, "   %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", location.Column-1))
		}
	}
	return sb.String()
}

// WithContext fills err.Context from src, or from disk when src is nil.
func WithContext(err *Error, src []byte, contextLines int) *Error {
	if !err.Location.IsValid() || err.Context != "" {
		return err
	}
	if src != nil {
		err.Context = ExtractContextFrom(src, err.Location, contextLines)
	} else {
		err.Context = ExtractContext(err.Location, contextLines)
	}
	return err
}
