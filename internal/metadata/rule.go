package metadata

// RuleDefinition is the JSON content of a rule.
type RuleDefinition struct {
	// Field receives the error when the rule is violated. Empty means "_error".
	Field string `json:"field,omitempty"`
	// Expression evaluates to true when the record is invalid.
	Expression string `json:"expression"`
	Message    string `json:"message,omitempty"`
	StopOnFail bool   `json:"stop_on_fail,omitempty"`
}

// Rule is a cross-field validation rule evaluated after the record schema.
type Rule struct {
	ID         string         `json:"id"`
	Resource   string         `json:"resource"`
	Hook       string         `json:"hook,omitempty"` // "create", "update" or empty for both
	Definition RuleDefinition `json:"definition"`
	Priority   int            `json:"priority"`
	Active     bool           `json:"active"`
}
