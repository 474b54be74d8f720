package repair

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmend/internal/classify"
	"github.com/local/pdfmend/internal/fields"
	"github.com/local/pdfmend/internal/metrics"
	"github.com/local/pdfmend/internal/ocr"
	"github.com/local/pdfmend/internal/textnorm"
)

// PageTextSource records where a page's final text came from.
type PageTextSource string

const (
	SourceOriginal    PageTextSource = "original"
	SourceOCR         PageTextSource = "ocr"
	SourcePlaceholder PageTextSource = "placeholder"
)

// Source is the open document the pipeline walks. pdf.Document satisfies it.
type Source interface {
	NumPages() int
	PageText(i int) (string, error)
	RenderPage(i int, dpi float64) (image.Image, error)
}

// Recoverer recovers text for a page via OCR. ocr.Service satisfies it.
type Recoverer interface {
	RecognizePage(ctx context.Context, r ocr.Renderer, i int) (string, error)
}

// PageResult is the terminal state of one page's repair.
type PageResult struct {
	Index          int
	Source         PageTextSource
	Text           string
	Classification *classify.Result
}

// Result is the document-level outcome: every page's terminal state, the
// combined per-page text record in page order, and optionally the structured
// fields parsed from it.
type Result struct {
	Pages        []PageResult
	CombinedText string
	Fields       fields.Extracted
}

// Recovered counts pages whose text came from OCR.
func (r Result) Recovered() int { return r.countSource(SourceOCR) }

// Unrecovered counts pages left with a placeholder entry.
func (r Result) Unrecovered() int { return r.countSource(SourcePlaceholder) }

func (r Result) countSource(s PageTextSource) int {
	n := 0
	for _, p := range r.Pages {
		if p.Source == s {
			n++
		}
	}
	return n
}

// Options configures a Pipeline.
type Options struct {
	Classifier *classify.Classifier
	Recoverer  Recoverer
	Sink       EventSink
	// StripArtifacts additionally removes page-number/header/footer noise
	// from kept original text.
	StripArtifacts bool
	// OCRConcurrency bounds parallel page OCR. Values <= 1 process pages
	// strictly in index order.
	OCRConcurrency int
	// ExtractFields parses the combined text for invoice fields.
	ExtractFields bool
}

// Pipeline repairs a document page by page: classify the embedded text,
// fall back to OCR when it is garbled or absent, normalize, and assemble the
// combined record in page order.
type Pipeline struct {
	classifier     *classify.Classifier
	recoverer      Recoverer
	sink           EventSink
	stripArtifacts bool
	concurrency    int
	extractFields  bool
}

// New builds a Pipeline. A nil classifier gets the default thresholds; a nil
// sink discards events.
func New(opts Options) *Pipeline {
	cls := opts.Classifier
	if cls == nil {
		cls = classify.New(0, 0)
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	conc := opts.OCRConcurrency
	if conc < 1 {
		conc = 1
	}
	return &Pipeline{
		classifier:     cls,
		recoverer:      opts.Recoverer,
		sink:           sink,
		stripArtifacts: opts.StripArtifacts,
		concurrency:    conc,
		extractFields:  opts.ExtractFields,
	}
}

// Run walks all pages of src. Per-page failures never abort the run; the
// only early exit is context cancellation, checked between page boundaries.
// The combined record always holds exactly one entry per page, in page order.
func (p *Pipeline) Run(ctx context.Context, src Source) (Result, error) {
	n := src.NumPages()
	results := make([]PageResult, n)

	if p.concurrency <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			results[i] = p.repairPage(ctx, src, i)
		}
	} else {
		// Pages may complete out of order; results are written by index so
		// the combined record stays in page order.
		sem := make(chan struct{}, p.concurrency)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				wg.Wait()
				return Result{}, err
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = p.repairPage(ctx, src, i)
			}(i)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}

	res := Result{Pages: results, CombinedText: combine(results)}
	if p.extractFields {
		res.Fields = fields.Extract(res.CombinedText)
	}
	return res, nil
}

// repairPage drives a single page through the state machine to its terminal
// state. It never returns an error: failures degrade to a placeholder.
func (p *Pipeline) repairPage(ctx context.Context, src Source, i int) PageResult {
	p.sink.Emit(Event{Type: EventPageStarted, Page: i})

	text, err := src.PageText(i)
	if err != nil {
		// Keep going: the raster may still be readable even when the text
		// layer is not.
		perr := &PageError{Page: i, Err: err}
		log.Warn().Err(perr).Msg("page text inaccessible, attempting OCR")
		text = ""
	}

	var cls *classify.Result
	if strings.TrimSpace(text) != "" {
		c := p.classifier.Classify(text)
		cls = &c
		p.sink.Emit(Event{Type: EventPageClassified, Page: i, Garbled: c.Garbled})
		if !c.Garbled {
			kept := text
			if p.stripArtifacts {
				kept = textnorm.StripArtifacts(kept, i+1)
			}
			kept = textnorm.Clean(kept)
			metrics.IncPage("clean")
			p.sink.Emit(Event{Type: EventPageDone, Page: i, Source: SourceOriginal, Chars: len(kept)})
			return PageResult{Index: i, Source: SourceOriginal, Text: kept, Classification: cls}
		}
	}

	recovered, err := p.recoverer.RecognizePage(ctx, src, i)
	if err != nil {
		if erc := ctx.Err(); erc != nil {
			// Cancellation surfaces at the next page boundary; mark this
			// page unrecovered so the partial result stays well-formed.
			err = erc
		}
		if !errors.Is(err, ocr.ErrNotRecognized) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Int("page", i+1).Msg("unexpected recovery failure")
		}
		metrics.IncPage("placeholder")
		p.sink.Emit(Event{Type: EventPageFailed, Page: i})
		return PageResult{
			Index:          i,
			Source:         SourcePlaceholder,
			Text:           Placeholder(i),
			Classification: cls,
		}
	}

	recovered = textnorm.Clean(recovered)
	metrics.IncPage("recovered")
	p.sink.Emit(Event{Type: EventPageRecovered, Page: i, Chars: len(recovered)})
	p.sink.Emit(Event{Type: EventPageDone, Page: i, Source: SourceOCR, Chars: len(recovered)})
	return PageResult{Index: i, Source: SourceOCR, Text: recovered, Classification: cls}
}

// Placeholder is the combined-record entry for a page with no recoverable
// text. i is 0-based.
func Placeholder(i int) string {
	return fmt.Sprintf("[Page %d - no text found after OCR]", i+1)
}

// combine builds the page-labeled combined record. One entry per page, in
// page order, regardless of each page's outcome.
func combine(pages []PageResult) string {
	var b strings.Builder
	for _, pr := range pages {
		if pr.Index > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Page %d ===\n", pr.Index+1)
		b.WriteString(pr.Text)
	}
	return b.String()
}
