package extract

import "strings"

// Normalize cleans extracted text: line endings become LF, trailing
// whitespace is trimmed, consecutive duplicate lines are dropped and runs
// of blank lines collapse to one.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	prev := ""
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\f\v\u00a0")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			prev = ""
			continue
		}
		blank = false
		if line == prev {
			continue
		}
		out = append(out, line)
		prev = line
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
