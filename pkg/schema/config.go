package schema

import "encoding/json"

// Config keys read by the edge semantics assigner.
const (
	ConfigDefaultPath         = "defaultPath"
	ConfigTruePathLabel       = "truePathLabel"
	ConfigFalsePathLabel      = "falsePathLabel"
	ConfigConditionExpression = "conditionExpression"
	ConfigExpressionLanguage  = "expressionLanguage"
	ConfigBranches            = "branches"
)

// StartConfig is the config block for Start nodes. InputSchema is a JSON
// Schema for the data a run is started with.
type StartConfig struct {
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// DecisionConfig is the config block for Decision nodes.
type DecisionConfig struct {
	ConditionExpression string `json:"conditionExpression,omitempty"`
	ExpressionLanguage  string `json:"expressionLanguage,omitempty"` // cel | expr | jq; empty uses the configured default
	DefaultPath         string `json:"defaultPath,omitempty"`        // true | false
	TruePathLabel       string `json:"truePathLabel,omitempty"`
	FalsePathLabel      string `json:"falsePathLabel,omitempty"`
}

// ApprovalConfig is the config block for Approval nodes.
type ApprovalConfig struct {
	Approvers     []string `json:"approvers,omitempty"`
	ApprovalType  string   `json:"approvalType,omitempty"` // any | all | majority
	Timeout       string   `json:"timeout,omitempty"`
	ApprovedLabel string   `json:"approvedLabel,omitempty"`
	RejectedLabel string   `json:"rejectedLabel,omitempty"`
}

// AutomatedTaskConfig is the config block for AutomatedTask nodes.
type AutomatedTaskConfig struct {
	Action        string         `json:"action,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	InputMapping  string         `json:"inputMapping,omitempty"`  // jq
	OutputMapping string         `json:"outputMapping,omitempty"` // jq
	RetryCount    int            `json:"retryCount,omitempty"`
}

// TimerConfig is the config block for Timer nodes. Exactly one of Duration
// or Schedule is expected.
type TimerConfig struct {
	Duration string `json:"duration,omitempty"` // Go duration, e.g. "15m"
	Schedule string `json:"schedule,omitempty"` // 5-field cron
}

// NotificationConfig is the config block for Notification nodes.
type NotificationConfig struct {
	Channel    string   `json:"channel,omitempty"` // email | sms | slack | webhook
	Recipients []string `json:"recipients,omitempty"`
	Subject    string   `json:"subject,omitempty"`
	Template   string   `json:"template,omitempty"`
}

// SubWorkflowConfig is the config block for SubWorkflow nodes.
type SubWorkflowConfig struct {
	WorkflowID string `json:"workflowId,omitempty"`
	Version    int    `json:"version,omitempty"`
	Wait       bool   `json:"wait,omitempty"`
}

// TaskConfig is the config block for Task nodes.
type TaskConfig struct {
	Assignee string `json:"assignee,omitempty"`
	DueIn    string `json:"dueIn,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// DecodeConfig decodes a node's loosely typed config into out.
func DecodeConfig(cfg map[string]any, out any) error {
	if len(cfg) == 0 {
		return nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// ConfigString returns cfg[key] when it is a string, "" otherwise.
func ConfigString(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}
