package fields

import "testing"

func TestExtractOrderFields(t *testing.T) {
	text := "Thanks for shopping.\nOrder #A1234 was placed on March 3, 2024 and shipped."

	got := Extract(text)
	if got.OrderNumber != "A1234" {
		t.Errorf("OrderNumber = %q, want %q", got.OrderNumber, "A1234")
	}
	if got.OrderDate != "March 3, 2024" {
		t.Errorf("OrderDate = %q, want %q", got.OrderDate, "March 3, 2024")
	}
}

func TestExtractRecipientBlock(t *testing.T) {
	text := "Invoice issued for and on behalf of:\nJane Doe\n123 Main St\nSpringfield"

	got := Extract(text)
	if got.RecipientName != "Jane Doe" {
		t.Errorf("RecipientName = %q, want %q", got.RecipientName, "Jane Doe")
	}
	if want := "123 Main St\nSpringfield"; got.RecipientAddress != want {
		t.Errorf("RecipientAddress = %q, want %q", got.RecipientAddress, want)
	}
}

func TestExtractIndependentFields(t *testing.T) {
	// Order number present without any of the other patterns.
	got := Extract("ref Order #Z-99/B in header")
	if got.OrderNumber != "Z-99/B" {
		t.Errorf("OrderNumber = %q, want %q", got.OrderNumber, "Z-99/B")
	}
	if got.OrderDate != "" || got.RecipientName != "" || got.RecipientAddress != "" {
		t.Errorf("unset fields must stay empty, got %+v", got)
	}
}

func TestExtractNothing(t *testing.T) {
	if got := Extract("no structured data here at all"); got != (Extracted{}) {
		t.Errorf("Extract on plain text = %+v, want zero value", got)
	}
}

func TestExtractFirstMatchWins(t *testing.T) {
	text := "Order #FIRST then later Order #SECOND\nplaced on May 1, 2023 and placed on June 2, 2024"
	got := Extract(text)
	if got.OrderNumber != "FIRST" {
		t.Errorf("OrderNumber = %q, want first match", got.OrderNumber)
	}
	if got.OrderDate != "May 1, 2023" {
		t.Errorf("OrderDate = %q, want first match", got.OrderDate)
	}
}
