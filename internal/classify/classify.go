// Package classify assigns budget categories to imported transactions
// using an ordered list of substring rules.
package classify

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ledger/internal/core"
)

//go:embed rules.yaml
var defaultRules []byte

// Field names the transaction attribute a rule inspects.
type Field string

const (
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
)

var (
	ErrUnknownField  = errors.New("unknown rule field")
	ErrEmptyContains = errors.New("rule contains is empty")
	ErrEmptyLabel    = errors.New("rule label is empty")
	ErrNoRules       = errors.New("rule set is empty")
)

// Rule maps a case-insensitive substring of Field to Label.
type Rule struct {
	Field    Field  `yaml:"field"`
	Contains string `yaml:"contains"`
	Label    string `yaml:"label"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

func (r Rule) Validate() error {
	switch r.Field {
	case FieldDescription, FieldCategory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, r.Field)
	}
	if strings.TrimSpace(r.Contains) == "" {
		return ErrEmptyContains
	}
	if strings.TrimSpace(r.Label) == "" {
		return ErrEmptyLabel
	}
	return nil
}

// Classifier holds a validated, ordered rule set. The zero value has no rules
// and leaves every category untouched.
type Classifier struct {
	rules  []Rule
	needle []string
}

// New validates rules and returns a classifier that evaluates them in order.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	c := &Classifier{
		rules:  make([]Rule, len(rules)),
		needle: make([]string, len(rules)),
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		c.rules[i] = r
		c.needle[i] = strings.ToLower(r.Contains)
	}
	return c, nil
}

// Default returns the classifier built from the embedded rule set.
func Default() *Classifier {
	c, err := Load(strings.NewReader(string(defaultRules)))
	if err != nil {
		panic(fmt.Sprintf("classify: embedded rules invalid: %v", err))
	}
	return c
}

// Load parses a YAML rule file.
func Load(r io.Reader) (*Classifier, error) {
	var f ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoRules
		}
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return New(f.Rules)
}

// LoadFile parses the YAML rule file at path.
func LoadFile(path string) (*Classifier, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer fh.Close()

	c, err := Load(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Rules returns a copy of the rule set in evaluation order.
func (c *Classifier) Rules() []Rule {
	if c == nil {
		return nil
	}
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Label returns the category for tx. The first matching rule wins; with no
// match the existing category is kept, or the description when it is empty.
func (c *Classifier) Label(tx core.Transaction) string {
	if c != nil {
		desc := strings.ToLower(tx.Description)
		cat := strings.ToLower(tx.Category)
		for i, r := range c.rules {
			subject := desc
			if r.Field == FieldCategory {
				subject = cat
			}
			if strings.Contains(subject, c.needle[i]) {
				return r.Label
			}
		}
	}
	if tx.Category != "" {
		return tx.Category
	}
	return tx.Description
}

// Classify returns tx with its Category replaced by Label(tx).
func (c *Classifier) Classify(tx core.Transaction) core.Transaction {
	tx.Category = c.Label(tx)
	return tx
}

// ClassifyAll classifies every row in place and returns how many categories changed.
func (c *Classifier) ClassifyAll(rows []core.Transaction) int {
	changed := 0
	for i := range rows {
		label := c.Label(rows[i])
		if label != rows[i].Category {
			changed++
		}
		rows[i].Category = label
	}
	return changed
}
