package classify

import (
	"strings"
	"testing"
)

func TestClassifyCleanText(t *testing.T) {
	c := New(0, 0)

	tests := []struct {
		name string
		text string
	}{
		{"plain sentence", "The quick brown fox jumps over the lazy dog."},
		{"multiline", "Order confirmation for your purchase.\nThank you for shopping with us today."},
		{"digits and punctuation", "Invoice 1042 was paid on time, thank you very much!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.text)
			if res.Garbled {
				t.Fatalf("Classify(%q) garbled = true, want false (readability=%.3f words=%d)",
					tt.text, res.ReadabilityRatio, res.WordCount)
			}
			if res.ReadabilityRatio < DefaultReadabilityThreshold {
				t.Errorf("readability = %.3f, want >= %.2f", res.ReadabilityRatio, DefaultReadabilityThreshold)
			}
		})
	}
}

func TestClassifyGarbledText(t *testing.T) {
	c := New(0, 0)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"symbol soup", "�)(*&^%$#@�)(*&^%$#@�)(*&^%$#@�)(*&^"},
		{"too few words", "just four short words"},
		{"mostly control garbage", strings.Repeat("\x01\x02\x03 ok ", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := c.Classify(tt.text); !res.Garbled {
				t.Fatalf("Classify(%q) garbled = false, want true (readability=%.3f words=%d)",
					tt.text, res.ReadabilityRatio, res.WordCount)
			}
		})
	}
}

func TestClassifyEmptySkipsRatios(t *testing.T) {
	res := New(0, 0).Classify("")
	if !res.Garbled {
		t.Fatal("empty text must be garbled")
	}
	if res.ReadabilityRatio != 0 || res.SymbolRatio != 0 || res.WordCount != 0 {
		t.Fatalf("empty text must not compute metrics, got %+v", res)
	}
}

func TestClassifyBoundary(t *testing.T) {
	c := New(0, 0)

	// 90 accepted chars out of 100: readability exactly at the threshold is clean.
	atThreshold := strings.Repeat("aaaa aaaa ", 9) + "##########"
	res := c.Classify(atThreshold)
	if res.ReadabilityRatio != 0.90 {
		t.Fatalf("fixture readability = %.4f, want 0.90", res.ReadabilityRatio)
	}
	if res.Garbled {
		t.Error("readability == 0.90 with enough words must be clean")
	}

	// One more symbol tips it under the threshold.
	below := strings.Repeat("aaaa aaaa ", 9)[:89] + "###########"
	if res := c.Classify(below); !res.Garbled {
		t.Errorf("readability %.4f must be garbled", res.ReadabilityRatio)
	}

	// Word count boundary: five words is clean, four is not.
	if res := c.Classify("one two three four five"); res.Garbled {
		t.Error("five words of clean text must be clean")
	}
	if res := c.Classify("one two three four"); !res.Garbled {
		t.Error("four words must be garbled")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New(0, 0)
	text := "Some partially ?!garbledé content with mixed characters 123."
	first := c.Classify(text)
	for i := 0; i < 5; i++ {
		if got := c.Classify(text); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}

func TestSymbolRatioComplements(t *testing.T) {
	res := New(0, 0).Classify("hello world ## something else entirely")
	if diff := res.ReadabilityRatio + res.SymbolRatio - 1; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("readability %.6f + symbol %.6f != 1", res.ReadabilityRatio, res.SymbolRatio)
	}
}
