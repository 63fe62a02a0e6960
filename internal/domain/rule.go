package domain

import "time"

// RiskRule is an operator-defined scoring rule evaluated per document after
// the built-in identity rules. The CEL expression sees the extracted fields
// and the running fraud score; a true boolean result adds Weight points, a
// numeric result is scaled by Weight.
type RiskRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Points contributed when the rule triggers (multiplier for numeric results)
	Weight float64 `json:"weight"`

	// Reason appended to the document when the rule contributes a nonzero delta
	Reason string `json:"reason,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RiskRuleResult is the outcome of one custom rule evaluation.
type RiskRuleResult struct {
	RuleID string `json:"ruleId"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason,omitempty"`
	Err    string `json:"err,omitempty"`
}
