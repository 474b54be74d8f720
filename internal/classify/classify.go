package classify

import "strings"

// Defaults for the garbled-text heuristic.
const (
	DefaultReadabilityThreshold = 0.90
	DefaultMinWordCount         = 5
)

// Result carries the verdict together with the metrics that produced it.
type Result struct {
	Garbled          bool
	ReadabilityRatio float64
	SymbolRatio      float64
	WordCount        int
}

// Classifier judges whether extracted page text is trustworthy or must be
// replaced. The zero value is not usable; call New.
type Classifier struct {
	readabilityThreshold float64
	minWordCount         int
}

// New returns a classifier with the given thresholds. Non-positive values
// fall back to the defaults.
func New(readabilityThreshold float64, minWordCount int) *Classifier {
	if readabilityThreshold <= 0 {
		readabilityThreshold = DefaultReadabilityThreshold
	}
	if minWordCount <= 0 {
		minWordCount = DefaultMinWordCount
	}
	return &Classifier{readabilityThreshold: readabilityThreshold, minWordCount: minWordCount}
}

// Classify computes the readability metrics for text and decides whether it
// is garbled. Empty text is always garbled; no ratios are computed for it.
func (c *Classifier) Classify(text string) Result {
	if len(text) == 0 {
		return Result{Garbled: true}
	}

	accepted := 0
	total := 0
	for _, r := range text {
		total++
		if isAccepted(r) {
			accepted++
		}
	}

	readability := float64(accepted) / float64(total)
	symbol := 1 - readability
	words := len(strings.Fields(text))

	// The first two conditions overlap by construction.
	garbled := readability < c.readabilityThreshold ||
		symbol > 1-c.readabilityThreshold ||
		words < c.minWordCount

	return Result{
		Garbled:          garbled,
		ReadabilityRatio: readability,
		SymbolRatio:      symbol,
		WordCount:        words,
	}
}

// isAccepted reports whether r belongs to the accepted character class:
// ASCII letters, digits, whitespace and basic sentence punctuation.
func isAccepted(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '\n' || r == '\t' || r == '\r':
		return true
	case r == '.' || r == ',' || r == '!' || r == '?':
		return true
	}
	return false
}
