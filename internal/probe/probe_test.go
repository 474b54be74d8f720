package probe

import (
	"errors"
	"strings"
	"testing"
)

type fakeDoc struct {
	pages   []string
	textErr map[int]error
}

func (d *fakeDoc) NumPage() int { return len(d.pages) }

func (d *fakeDoc) PageText(i int) (string, error) {
	if err, ok := d.textErr[i]; ok {
		return "", err
	}
	return d.pages[i], nil
}

func (d *fakeDoc) Close() error { return nil }

type fakeOpener struct {
	doc *fakeDoc
	err error
}

func (o *fakeOpener) Open(string) (Doc, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.doc, nil
}

func withOpener(t *testing.T, o Opener) {
	t.Helper()
	prev := defaultOpener
	setDefaultOpener(o)
	t.Cleanup(func() { setDefaultOpener(prev) })
}

func TestHasTextLayer(t *testing.T) {
	textPage := strings.Repeat("lorem ipsum dolor sit amet ", 20)

	tests := []struct {
		name      string
		pages     []string
		threshold int
		want      bool
	}{
		{"born digital", []string{textPage, textPage, textPage}, 300, true},
		{"pure scan", []string{"", "", ""}, 300, false},
		{"whitespace only", []string{"   \n\t  ", "\n\n"}, 1, false},
		{"single text page meets low threshold", []string{"hello world"}, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withOpener(t, &fakeOpener{doc: &fakeDoc{pages: tt.pages}})

			got, diag, err := HasTextLayer("test.pdf", tt.threshold)
			if err != nil {
				t.Fatalf("HasTextLayer: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v (sample chars %d)", got, tt.want, diag.SampleChars)
			}
			if diag.TotalPages != len(tt.pages) {
				t.Errorf("TotalPages = %d, want %d", diag.TotalPages, len(tt.pages))
			}
		})
	}
}

func TestHasTextLayerEmptyDoc(t *testing.T) {
	withOpener(t, &fakeOpener{doc: &fakeDoc{}})

	got, diag, err := HasTextLayer("empty.pdf", 0)
	if err != nil {
		t.Fatalf("HasTextLayer: %v", err)
	}
	if got {
		t.Error("empty document should not have a text layer")
	}
	if diag.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want default %d", diag.Threshold, DefaultThreshold)
	}
}

func TestHasTextLayerPageErrors(t *testing.T) {
	pages := []string{"", "", ""}
	withOpener(t, &fakeOpener{doc: &fakeDoc{
		pages:   pages,
		textErr: map[int]error{1: errors.New("damaged page")},
	}})

	got, diag, err := HasTextLayer("damaged.pdf", 10)
	if err != nil {
		t.Fatalf("HasTextLayer: %v", err)
	}
	if got {
		t.Error("document with no readable text should fail the probe")
	}
	var found bool
	for _, p := range diag.Probes {
		if p.PageIndex == 1 && p.Err != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected a probe entry recording the page error")
	}
}

func TestHasTextLayerExplicitPages(t *testing.T) {
	pages := []string{"", "abcdefghij", "", ""}
	withOpener(t, &fakeOpener{doc: &fakeDoc{pages: pages}})

	got, diag, err := HasTextLayerPages("explicit.pdf", 10, []int{1, 1, -3, 99})
	if err != nil {
		t.Fatalf("HasTextLayerPages: %v", err)
	}
	if !got {
		t.Error("page 1 alone meets the threshold")
	}
	if len(diag.SampledPages) != 1 || diag.SampledPages[0] != 1 {
		t.Errorf("SampledPages = %v, want [1]", diag.SampledPages)
	}
}

func TestSampleIndices(t *testing.T) {
	for _, total := range []int{1, 3, 5} {
		got := sampleIndices(total)
		if len(got) != total {
			t.Errorf("total=%d: sampled %d pages, want all", total, len(got))
		}
	}

	got := sampleIndices(40)
	if len(got) != 5 {
		t.Fatalf("sampled %d pages, want 5", len(got))
	}
	has := func(n int) bool {
		for _, v := range got {
			if v == n {
				return true
			}
		}
		return false
	}
	if !has(0) || !has(20) || !has(39) {
		t.Errorf("sample %v must include first, middle and last page", got)
	}
}
