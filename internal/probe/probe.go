// Package probe answers a cheap pre-flight question: does this PDF carry a
// text layer at all, or is it a pure scan? Sampling a handful of pages is
// enough to route a document before the per-page pipeline runs.
package probe

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"time"
)

// DefaultThreshold is the minimum number of non-whitespace runes across the
// sample for a document to count as having a text layer.
const DefaultThreshold = 300

// PageProbe records the outcome for one sampled page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes how the text-layer verdict was reached.
type Diagnostics struct {
	FilePath     string      `json:"file_path"`
	TotalPages   int         `json:"total_pages"`
	SampledPages []int       `json:"sampled_pages"`
	SampleChars  int         `json:"sample_chars"`
	Threshold    int         `json:"threshold"`
	Probes       []PageProbe `json:"probes"`
	HasTextLayer bool        `json:"has_text_layer"`
	DurationMs   int64       `json:"duration_ms"`
}

// Doc abstracts a PDF document for probing.
type Doc interface {
	NumPage() int
	PageText(i int) (string, error)
	Close() error
}

// Opener opens a PDF path into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// defaultOpener is installed in fitz.go.
var defaultOpener Opener

func setDefaultOpener(o Opener) { defaultOpener = o }

// HasTextLayer samples pages of the PDF at path and reports whether the
// combined non-whitespace rune count reaches threshold. A non-positive
// threshold falls back to DefaultThreshold.
func HasTextLayer(path string, threshold int) (bool, *Diagnostics, error) {
	return HasTextLayerPages(path, threshold, nil)
}

// HasTextLayerPages is HasTextLayer with explicit zero-based page indices to
// sample. Nil pages selects the standard heuristic: all pages for short
// documents, first, middle, last plus random picks otherwise.
func HasTextLayerPages(path string, threshold int, pages []int) (bool, *Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if defaultOpener == nil {
		return false, nil, errors.New("no PDF opener configured")
	}

	start := time.Now()
	d, err := defaultOpener.Open(path)
	if err != nil {
		return false, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()

	total := d.NumPage()
	if total <= 0 {
		return false, &Diagnostics{
			FilePath:     path,
			TotalPages:   total,
			SampledPages: []int{},
			Threshold:    threshold,
			DurationMs:   time.Since(start).Milliseconds(),
		}, nil
	}

	var sampleIdx []int
	if pages != nil {
		sampleIdx = clampPages(pages, total)
	} else {
		sampleIdx = sampleIndices(total)
	}

	probes := make([]PageProbe, 0, len(sampleIdx))
	totalChars := 0
	for _, idx := range sampleIdx {
		p := PageProbe{PageIndex: idx}
		text, terr := d.PageText(idx)
		if terr != nil {
			p.Err = terr.Error()
			probes = append(probes, p)
			continue
		}
		p.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		totalChars += p.CharCount
		probes = append(probes, p)
		if totalChars >= threshold {
			break
		}
	}

	diag := &Diagnostics{
		FilePath:     path,
		TotalPages:   total,
		SampledPages: sampleIdx,
		SampleChars:  totalChars,
		Threshold:    threshold,
		Probes:       probes,
		HasTextLayer: totalChars >= threshold,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	return diag.HasTextLayer, diag, nil
}

// sampleIndices picks up to 5 pages: everything for total <= 5, otherwise
// first, middle, last plus random distinct fillers.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	picked := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for len(picked) < 5 {
		picked[rnd.Intn(total)] = struct{}{}
	}

	out := make([]int, 0, len(picked))
	for i := range picked {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// clampPages deduplicates, drops out-of-range indices and sorts.
func clampPages(pages []int, total int) []int {
	m := make(map[int]struct{})
	for _, p := range pages {
		if p < 0 || p >= total {
			continue
		}
		m[p] = struct{}{}
	}
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
