package fields

import (
	"regexp"
	"strings"
)

// Extracted holds the structured fields recovered from combined document
// text. Every field is independent and best-effort: an empty string means the
// pattern was not found, which is not an error.
type Extracted struct {
	OrderNumber      string
	OrderDate        string
	RecipientName    string
	RecipientAddress string
}

var (
	orderNumberRe = regexp.MustCompile(`Order #(\S+)`)
	orderDateRe   = regexp.MustCompile(`placed on ([A-Za-z]+ \d{1,2}, \d{4})`)
	// Marker line followed by exactly three lines: name, then two address lines.
	recipientRe = regexp.MustCompile(`Invoice issued for and on behalf of:\n([^\n]+)\n([^\n]+)\n([^\n]+)`)
)

// Extract scans combined text for known invoice fields. The input is not
// modified; a fresh result is returned.
func Extract(combined string) Extracted {
	var out Extracted

	if m := orderNumberRe.FindStringSubmatch(combined); m != nil {
		out.OrderNumber = m[1]
	}
	if m := orderDateRe.FindStringSubmatch(combined); m != nil {
		out.OrderDate = m[1]
	}
	if m := recipientRe.FindStringSubmatch(combined); m != nil {
		out.RecipientName = strings.TrimSpace(m[1])
		out.RecipientAddress = m[2] + "\n" + m[3]
	}

	return out
}
