// Package content turns course material files into plain text.
package content

import (
	"fmt"
	"os"
	"strings"
)

// ParseVTT extracts the spoken text from WebVTT subtitle content. Headers,
// NOTE blocks, cue timings, numeric cue indices and bracketed non-speech
// markers such as [Music] are dropped; remaining lines are joined with
// single spaces.
func ParseVTT(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "WEBVTT"):
		case strings.HasPrefix(line, "NOTE"):
		case strings.Contains(line, "-->"):
		case isDigits(line):
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
		default:
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}

// ReadVTT reads and parses a subtitle file.
func ReadVTT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read subtitle file: %w", err)
	}
	return ParseVTT(strings.TrimPrefix(string(data), "\ufeff")), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
