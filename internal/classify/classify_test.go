package classify

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ledger/internal/core"
)

func TestDefaultRules(t *testing.T) {
	c := Default()

	tests := []struct {
		name        string
		description string
		category    string
		want        string
	}{
		{"netflix first match", "NETFLIX.COM 855-123-4567 CA", "Entertainment", "Netflix"},
		{"dividend", "DIVIDEND PAID", "Income", "Money towards savings"},
		{"description beats category", "SCHNUCKS #123", "Dining Out", "Groceries/House Supplies"},
		{"category rule", "SHELL OIL 1234", "Gas / Fuel", "Gas"},
		{"category case insensitive", "SOME CAFE", "dining out", "Eating Out"},
		{"mortgage", "ACH:JPMORGAN CHASE -CHASE ACH", "Mortgage", "JPMorgan Chase - Mortgage"},
		{"no match keeps category", "LOCAL HARDWARE", "Home Improvement", "Home Improvement"},
		{"no match no category uses description", "LOCAL HARDWARE", "", "LOCAL HARDWARE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(core.Transaction{Description: tt.description, Category: tt.category})
			if got.Category != tt.want {
				t.Errorf("Classify() category = %q, want %q", got.Category, tt.want)
			}
		})
	}
}

func TestDefaultRuleOrder(t *testing.T) {
	rules := Default().Rules()
	if len(rules) != 18 {
		t.Fatalf("expected 18 default rules, got %d", len(rules))
	}
	if rules[0].Contains != "dividend paid" || rules[len(rules)-1].Label != "Progressive Insurance" {
		t.Fatalf("unexpected rule order: first=%+v last=%+v", rules[0], rules[len(rules)-1])
	}
}

func TestFirstMatchWins(t *testing.T) {
	c, err := New([]Rule{
		{Field: FieldDescription, Contains: "coffee", Label: "First"},
		{Field: FieldDescription, Contains: "coffee shop", Label: "Second"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := c.Label(core.Transaction{Description: "Coffee Shop"}); got != "First" {
		t.Fatalf("Label() = %q, want First", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := Default()
	tx := core.Transaction{Description: "TMOBILE*AUTO PAY", Category: "Mobile Phone"}
	first := c.Classify(tx)
	for i := 0; i < 5; i++ {
		if got := c.Classify(tx); got.Category != first.Category {
			t.Fatalf("run %d: got %q, want %q", i, got.Category, first.Category)
		}
	}
}

func TestClassifyAll(t *testing.T) {
	rows := []core.Transaction{
		{Description: "AUTOZONE 42", Category: "Auto Parts"},
		{Description: "UNKNOWN", Category: "Misc"},
	}
	if changed := Default().ClassifyAll(rows); changed != 1 {
		t.Fatalf("ClassifyAll() changed = %d, want 1", changed)
	}
	if rows[0].Category != "Car Expenses" || rows[1].Category != "Misc" {
		t.Fatalf("unexpected categories: %q, %q", rows[0].Category, rows[1].Category)
	}
}

func TestNilClassifierKeepsCategory(t *testing.T) {
	var c *Classifier
	if got := c.Label(core.Transaction{Description: "X", Category: "Y"}); got != "Y" {
		t.Fatalf("Label() = %q, want Y", got)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"empty document", "", ErrNoRules},
		{"no rules", "rules: []\n", ErrNoRules},
		{"unknown field", "rules:\n  - field: amount\n    contains: x\n    label: y\n", ErrUnknownField},
		{"empty contains", "rules:\n  - field: description\n    contains: ' '\n    label: y\n", ErrEmptyContains},
		{"empty label", "rules:\n  - field: category\n    contains: x\n", ErrEmptyLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n  - field: description\n    contains: gym\n    label: Fitness\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := c.Label(core.Transaction{Description: "PLANET GYM"}); got != "Fitness" {
		t.Fatalf("Label() = %q, want Fitness", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
