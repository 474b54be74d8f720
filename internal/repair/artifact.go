package repair

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmend/internal/pdf"
)

// ArtifactMode selects the output reconstruction strategy.
type ArtifactMode string

const (
	// ModeOverlay draws recovered text on top of the original pages.
	ModeOverlay ArtifactMode = "overlay"
	// ModeFreshPage emits a new document whose pages carry only the
	// recovered text as a single annotation block.
	ModeFreshPage ArtifactMode = "fresh"
	// ModeFreshLayout emits a new document with the recovered text laid out
	// line by line.
	ModeFreshLayout ArtifactMode = "freshlayout"
)

// ParseArtifactMode maps a config string to a mode, defaulting to overlay.
func ParseArtifactMode(s string) ArtifactMode {
	switch ArtifactMode(s) {
	case ModeFreshPage, ModeFreshLayout, ModeOverlay:
		return ArtifactMode(s)
	default:
		return ModeOverlay
	}
}

// ArtifactBuilder turns a repair result into an output PDF. The artifact is
// built once per run and written to its destination exactly once, using an
// atomic rename so a failed write leaves no partial file.
type ArtifactBuilder struct {
	mode ArtifactMode
}

// NewArtifactBuilder returns a builder for the given mode.
func NewArtifactBuilder(mode ArtifactMode) *ArtifactBuilder {
	return &ArtifactBuilder{mode: mode}
}

// Build writes the reconstructed document for res to dest. srcPath is the
// original PDF; it is only read, never modified. Pages that ended in a
// placeholder are left untouched (overlay) or carry the placeholder text
// (fresh modes).
func (b *ArtifactBuilder) Build(srcPath string, res Result, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &WriteError{Dest: dest, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".pdfmend-out-*.pdf")
	if err != nil {
		return &WriteError{Dest: dest, Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	switch b.mode {
	case ModeFreshPage, ModeFreshLayout:
		err = b.buildFresh(res, tmpPath)
	default:
		err = b.buildOverlay(srcPath, res, tmpPath)
	}
	if err != nil {
		return &WriteError{Dest: dest, Err: err}
	}

	if err := pdf.RenameAtomic(tmpPath, dest); err != nil {
		return &WriteError{Dest: dest, Err: err}
	}
	log.Info().Str("mode", string(b.mode)).Str("dest", dest).Int("pages", len(res.Pages)).Msg("wrote repaired document")
	return nil
}

// buildOverlay stamps recovered text onto the pages whose text layer was
// replaced. Pages kept as-is and placeholder pages stay untouched.
func (b *ArtifactBuilder) buildOverlay(srcPath string, res Result, out string) error {
	wms := map[int]*model.Watermark{}
	for _, pr := range res.Pages {
		if pr.Source != SourceOCR || pr.Text == "" {
			continue
		}
		wm, err := api.TextWatermark(pr.Text,
			"fontname:Helvetica, points:9, scalefactor:1 abs, position:tl, offset:10 -10, rotation:0, opacity:1",
			true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("build overlay for page %d: %w", pr.Index+1, err)
		}
		wms[pr.Index+1] = wm
	}

	if len(wms) == 0 {
		// Nothing was recovered; the artifact is a faithful copy.
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		return os.WriteFile(out, data, 0o644)
	}

	if err := api.AddWatermarksMapFile(srcPath, out, wms, nil); err != nil {
		return fmt.Errorf("apply overlays: %w", err)
	}
	return nil
}

// createText mirrors the text primitive of pdfcpu's create JSON schema.
type createText struct {
	Value  string     `json:"value"`
	Anchor string     `json:"anchor,omitempty"`
	Dx     float64    `json:"dx,omitempty"`
	Dy     float64    `json:"dy,omitempty"`
	Font   createFont `json:"font"`
}

type createFont struct {
	Name string  `json:"name"`
	Size float64 `json:"size"`
}

type createContent struct {
	Text []createText `json:"text"`
}

type createPage struct {
	Content createContent `json:"content"`
}

type createSpec struct {
	Paper string                `json:"paper"`
	Pages map[string]createPage `json:"pages"`
}

// buildFresh emits a brand new document, one page per input page, holding
// only the final per-page text.
func (b *ArtifactBuilder) buildFresh(res Result, out string) error {
	spec := createSpec{Paper: "A4", Pages: map[string]createPage{}}

	for _, pr := range res.Pages {
		var texts []createText
		if b.mode == ModeFreshLayout {
			texts = layoutLines(pr.Text)
		} else {
			texts = []createText{{
				Value:  pr.Text,
				Anchor: "tl",
				Dx:     36,
				Dy:     -36,
				Font:   createFont{Name: "Helvetica", Size: 10},
			}}
		}
		spec.Pages[strconv.Itoa(pr.Index+1)] = createPage{Content: createContent{Text: texts}}
	}

	f, err := os.CreateTemp("", "pdfmend-create-*.json")
	if err != nil {
		return err
	}
	jsonPath := f.Name()
	defer os.Remove(jsonPath)

	enc := json.NewEncoder(f)
	if err := enc.Encode(spec); err != nil {
		f.Close()
		return fmt.Errorf("encode create spec: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := api.CreateFromJSONFile(jsonPath, "", out, nil); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// layoutLines positions each text line separately, stepping down one leading
// per line from the top-left margin.
func layoutLines(text string) []createText {
	const (
		marginX = 36.0
		marginY = 36.0
		leading = 12.0
	)
	var out []createText
	y := marginY
	for _, line := range strings.Split(text, "\n") {
		out = append(out, createText{
			Value:  line,
			Anchor: "tl",
			Dx:     marginX,
			Dy:     -y,
			Font:   createFont{Name: "Courier", Size: 9},
		})
		y += leading
	}
	return out
}
