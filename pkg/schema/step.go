package schema

// Step is the linear, backend-executable form of one graph node.
type Step struct {
	Name        string         `json:"name"`
	Order       int            `json:"order"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	NodeID      string         `json:"nodeId"`
	Config      map[string]any `json:"config"`
	Branches    []Branch       `json:"branches,omitempty"`
}

// Branch maps a branch label to the node it selects.
type Branch struct {
	ConditionLabel string        `json:"conditionLabel"`
	ConditionKind  ConditionKind `json:"conditionKind,omitempty"`
	TargetNodeID   string        `json:"targetNodeId"`
}

// TranslationResult is the output of one translation pass. It is created
// fresh on every call and never mutated after it is returned.
type TranslationResult struct {
	Steps    []Step            `json:"steps"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings,omitempty"`
	Issues   []ValidationIssue `json:"issues,omitempty"`
}

// Valid reports whether the result may be persisted.
func (r *TranslationResult) Valid() bool {
	return len(r.Errors) == 0
}

// NewTranslationResult flattens a ValidationResult into a TranslationResult.
func NewTranslationResult(steps []Step, vr *ValidationResult) *TranslationResult {
	res := &TranslationResult{
		Steps:  steps,
		Errors: []string{},
	}
	if res.Steps == nil {
		res.Steps = []Step{}
	}
	if vr == nil {
		return res
	}
	for _, issue := range vr.Errors {
		res.Errors = append(res.Errors, issue.Message)
	}
	for _, issue := range vr.Warnings {
		res.Warnings = append(res.Warnings, issue.Message)
	}
	res.Issues = append(res.Issues, vr.Errors...)
	res.Issues = append(res.Issues, vr.Warnings...)
	return res
}
