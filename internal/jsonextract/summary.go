package jsonextract

import "strings"

// Summary extracts a "## Summary" section (case-insensitive) from iteration
// output, stopping at the next heading, a "---" rule, or a bold-leading
// line, truncated to 2000 chars. Falls back to the last 10 non-empty output
// lines truncated to 1000 chars when no such section exists.
func Summary(output string) string {
	lines := strings.Split(output, "\n")

	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.EqualFold(strings.TrimLeft(trimmed, "#"), " summary") || strings.EqualFold(strings.TrimSpace(strings.TrimLeft(trimmed, "#")), "summary") {
			start = i + 1
			break
		}
	}

	if start == -1 {
		return fallbackSummary(lines)
	}

	var section []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || trimmed == "---" || strings.HasPrefix(trimmed, "**") {
			break
		}
		section = append(section, line)
	}

	return truncate(strings.TrimSpace(strings.Join(section, "\n")), 2000)
}

func fallbackSummary(lines []string) string {
	var nonEmpty []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) > 10 {
		nonEmpty = nonEmpty[len(nonEmpty)-10:]
	}
	return truncate(strings.TrimSpace(strings.Join(nonEmpty, "\n")), 1000)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
