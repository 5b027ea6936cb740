package diff

import (
	"strings"
	"testing"
)

func TestWordsIdentical(t *testing.T) {
	changes := Words("write a haiku about go", "write a haiku about go")
	if len(changes) != 1 {
		t.Fatalf("expected a single change run, got %d", len(changes))
	}
	if changes[0].Type != Equal {
		t.Fatalf("expected equal run, got %s", changes[0].Type)
	}
}

func TestWordsInsertAndDelete(t *testing.T) {
	changes := Words("summarize the report", "summarize the quarterly report")

	var inserted, deleted []string
	for _, c := range changes {
		switch c.Type {
		case Insert:
			inserted = append(inserted, strings.TrimSpace(c.Text))
		case Delete:
			deleted = append(deleted, strings.TrimSpace(c.Text))
		}
	}
	if len(inserted) != 1 || inserted[0] != "quarterly" {
		t.Fatalf("expected insert of %q, got %v", "quarterly", inserted)
	}
	if len(deleted) != 0 {
		t.Fatalf("expected no deletes, got %v", deleted)
	}
}

func TestWordsReconstructsNewText(t *testing.T) {
	oldText := "You are a helpful assistant. Answer briefly."
	newText := "You are a strict reviewer. Answer briefly and cite sources."

	var rebuilt strings.Builder
	for _, c := range Words(oldText, newText) {
		if c.Type == Delete {
			continue
		}
		rebuilt.WriteString(c.Text)
	}
	if rebuilt.String() != newText {
		t.Fatalf("equal+insert runs do not reproduce new text:\n got %q\nwant %q", rebuilt.String(), newText)
	}
}

// Repeated calls over the same inputs must yield the same result.
func TestWordsDeterministic(t *testing.T) {
	oldText := "alpha beta gamma delta"
	newText := "alpha gamma beta epsilon"

	first := Words(oldText, newText)
	for i := 0; i < 5; i++ {
		again := Words(oldText, newText)
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d changes, first run produced %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d change %d = %+v, first run = %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestWordsEmptyInputs(t *testing.T) {
	if changes := Words("", ""); len(changes) != 0 {
		t.Fatalf("expected no changes for empty inputs, got %v", changes)
	}
	changes := Words("", "hello world")
	if len(changes) != 1 || changes[0].Type != Insert {
		t.Fatalf("expected single insert, got %v", changes)
	}
	changes = Words("hello world", "")
	if len(changes) != 1 || changes[0].Type != Delete {
		t.Fatalf("expected single delete, got %v", changes)
	}
}
