package textnorm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var multiNewline = regexp.MustCompile(`\n{2,}`)

// Clean collapses runs of blank lines into a single newline and trims
// surrounding whitespace. Clean is idempotent: Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	return strings.TrimSpace(multiNewline.ReplaceAllString(text, "\n"))
}

// StripArtifacts removes extraction artifacts from page text: standalone page
// numbers, short all-caps header/footer lines, lines holding no letters or
// digits at all, and rejoins lines broken mid-sentence. pageNum is 1-based.
func StripArtifacts(text string, pageNum int) string {
	lines := strings.Split(text, "\n")
	var kept []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if isPageNumber(trimmed, pageNum) {
			continue
		}
		if isHeaderFooter(trimmed) {
			continue
		}
		if isNoise(trimmed) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(fixBrokenLines(strings.Join(kept, "\n")))
}

func isPageNumber(line string, pageNum int) bool {
	if line == strconv.Itoa(pageNum) {
		return true
	}
	patterns := []string{
		fmt.Sprintf("Page %d", pageNum),
		fmt.Sprintf("- %d -", pageNum),
		fmt.Sprintf("[%d]", pageNum),
	}
	for _, p := range patterns {
		if strings.EqualFold(line, p) {
			return true
		}
	}
	return false
}

func isHeaderFooter(line string) bool {
	if len(line) < 3 {
		return true
	}
	if len(line) < 50 && strings.ToUpper(line) == line {
		if len(strings.Fields(line)) <= 2 {
			return true
		}
	}
	footerPatterns := []string{
		"CONFIDENTIAL",
		"COPYRIGHT",
		"ALL RIGHTS RESERVED",
		"PROPRIETARY",
	}
	upper := strings.ToUpper(line)
	for _, p := range footerPatterns {
		if strings.Contains(upper, p) && len(line) < 100 {
			return true
		}
	}
	return false
}

// isNoise reports lines with no letters or digits at all.
func isNoise(line string) bool {
	for _, r := range line {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// fixBrokenLines merges a line into the next one when it does not end a
// sentence and the next line starts lowercase.
func fixBrokenLines(text string) string {
	lines := strings.Split(text, "\n")
	var fixed []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i < len(lines)-1 {
			trimmed := strings.TrimSpace(line)
			next := strings.TrimSpace(lines[i+1])
			if trimmed != "" && next != "" {
				last := trimmed[len(trimmed)-1]
				sentenceEnd := last == '.' || last == '!' || last == '?' || last == ':' || last == ';'
				if !sentenceEnd {
					first := next[0]
					if first >= 'a' && first <= 'z' && !strings.HasSuffix(trimmed, "-") {
						fixed = append(fixed, trimmed+" "+next)
						i++
						continue
					}
				}
			}
		}
		fixed = append(fixed, line)
	}

	return strings.Join(fixed, "\n")
}
