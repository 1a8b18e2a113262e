package validation

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/canvasflow/internal/expressions"
	"github.com/rendis/canvasflow/internal/graph"
	"github.com/rendis/canvasflow/pkg/schema"
)

var (
	notificationChannels = []string{"email", "sms", "slack", "webhook"}
	approvalTypes        = []string{"any", "all", "majority"}
)

// semanticChecker runs per-kind configuration checks.
type semanticChecker struct {
	engines *expressions.Registry
	actions ActionLookup
	inputs  *JSONSchemaValidator
	nodeIDs map[string]bool
	result  *schema.ValidationResult
}

// validateSemantic checks every node's config against its kind.
func validateSemantic(g schema.Graph, engines *expressions.Registry, actions ActionLookup, inputs *JSONSchemaValidator) *schema.ValidationResult {
	c := &semanticChecker{
		engines: engines,
		actions: actions,
		inputs:  inputs,
		nodeIDs: make(map[string]bool, len(g.Nodes)),
		result:  &schema.ValidationResult{},
	}
	for _, n := range g.Nodes {
		c.nodeIDs[n.ID] = true
	}

	for _, n := range g.Nodes {
		path := graph.NodePath(n.ID)
		switch n.Kind {
		case schema.KindStart:
			c.checkStart(n, path)
		case schema.KindTask:
			c.checkTask(n, path)
		case schema.KindDecision:
			c.checkDecision(n, path)
		case schema.KindApproval:
			c.checkApproval(n, path)
		case schema.KindAutomatedTask:
			c.checkAutomatedTask(n, path)
		case schema.KindTimer:
			c.checkTimer(n, path)
		case schema.KindNotification:
			c.checkNotification(n, path)
		case schema.KindSubWorkflow:
			c.checkSubWorkflow(n, path)
		}
	}
	return c.result
}

// decode reports a config that does not fit the kind's shape and returns
// false so the caller skips field checks.
func (c *semanticChecker) decode(n schema.Node, path string, out any) bool {
	if err := schema.DecodeConfig(n.Config, out); err != nil {
		c.result.AddError(path+".config", schema.ErrCodeConfig,
			fmt.Sprintf("%s node %s has malformed config: %s", n.Kind, n.ID, err.Error()))
		return false
	}
	return true
}

func (c *semanticChecker) checkStart(n schema.Node, path string) {
	var cfg schema.StartConfig
	if !c.decode(n, path, &cfg) || cfg.InputSchema == nil || c.inputs == nil {
		return
	}
	raw, err := json.Marshal(cfg.InputSchema)
	if err == nil {
		_, err = c.inputs.getOrCompile(raw)
	}
	if err != nil {
		c.result.AddError(path+".config.inputSchema", schema.ErrCodeConfig,
			fmt.Sprintf("start node %s has an invalid inputSchema: %s", n.ID, err.Error()))
	}
}

func (c *semanticChecker) checkTask(n schema.Node, path string) {
	var cfg schema.TaskConfig
	if !c.decode(n, path, &cfg) || cfg.DueIn == "" {
		return
	}
	c.checkDuration(n, path+".config.dueIn", "dueIn", cfg.DueIn)
}

func (c *semanticChecker) checkDecision(n schema.Node, path string) {
	var cfg schema.DecisionConfig
	if !c.decode(n, path, &cfg) {
		return
	}

	switch cfg.DefaultPath {
	case "", schema.PortTrue, schema.PortFalse:
	default:
		c.result.AddError(path+".config.defaultPath", schema.ErrCodeConfig,
			fmt.Sprintf("decision node %s has defaultPath %q; expected \"true\" or \"false\"", n.ID, cfg.DefaultPath))
	}

	if cfg.ConditionExpression == "" {
		c.result.AddError(path+".config.conditionExpression", schema.ErrCodeConfig,
			fmt.Sprintf("decision node %s has no conditionExpression", n.ID))
		return
	}
	if c.engines == nil {
		return
	}
	engine, err := c.engines.Get(cfg.ExpressionLanguage)
	if err != nil {
		c.result.AddError(path+".config.expressionLanguage", schema.ErrCodeExpression, errorMessage(err))
		return
	}
	if err := engine.Check(cfg.ConditionExpression); err != nil {
		c.result.AddError(path+".config.conditionExpression", schema.ErrCodeExpression, errorMessage(err))
	}
}

func (c *semanticChecker) checkApproval(n schema.Node, path string) {
	var cfg schema.ApprovalConfig
	if !c.decode(n, path, &cfg) {
		return
	}
	if len(cfg.Approvers) == 0 {
		c.result.AddWarning(path+".config.approvers", schema.ErrCodeConfig,
			fmt.Sprintf("approval node %s has no approvers", n.ID))
	}
	if cfg.ApprovalType != "" && !slices.Contains(approvalTypes, cfg.ApprovalType) {
		c.result.AddError(path+".config.approvalType", schema.ErrCodeConfig,
			fmt.Sprintf("approval node %s has approvalType %q; expected one of %s",
				n.ID, cfg.ApprovalType, strings.Join(approvalTypes, ", ")))
	}
	if cfg.Timeout != "" {
		c.checkDuration(n, path+".config.timeout", "timeout", cfg.Timeout)
	}
}

func (c *semanticChecker) checkAutomatedTask(n schema.Node, path string) {
	var cfg schema.AutomatedTaskConfig
	if !c.decode(n, path, &cfg) {
		return
	}

	switch {
	case cfg.Action == "":
		c.result.AddError(path+".config.action", schema.ErrCodeConfig,
			fmt.Sprintf("automated task %s has no action", n.ID))
	case c.actions != nil && !c.actions.Has(cfg.Action):
		c.result.AddError(path+".config.action", schema.ErrCodeConfig,
			fmt.Sprintf("automated task %s uses unknown action %q", n.ID, cfg.Action))
	default:
		c.checkParams(n, path, cfg)
	}

	if cfg.RetryCount < 0 {
		c.result.AddError(path+".config.retryCount", schema.ErrCodeConfig,
			fmt.Sprintf("automated task %s has negative retryCount", n.ID))
	} else if cfg.RetryCount > 10 {
		c.result.AddWarning(path+".config.retryCount", schema.ErrCodeConfig,
			fmt.Sprintf("high retry count (%d) may cause excessive delays", cfg.RetryCount))
	}

	if c.engines == nil {
		return
	}
	for _, m := range []struct{ key, program string }{
		{"inputMapping", cfg.InputMapping},
		{"outputMapping", cfg.OutputMapping},
	} {
		if m.program == "" {
			continue
		}
		if err := c.engines.JQ().Check(m.program); err != nil {
			c.result.AddError(path+".config."+m.key, schema.ErrCodeExpression, errorMessage(err))
		}
	}
}

// checkParams validates params against the action's schema when the
// lookup provides one.
func (c *semanticChecker) checkParams(n schema.Node, path string, cfg schema.AutomatedTaskConfig) {
	ps, ok := c.actions.(ParamsSchemas)
	if !ok || c.inputs == nil {
		return
	}
	paramsSchema := ps.ParamsSchema(cfg.Action)
	if paramsSchema == nil {
		return
	}
	if err := c.inputs.ValidateInput(cfg.Params, paramsSchema); err != nil {
		c.result.AddError(path+".config.params", schema.ErrCodeConfig,
			fmt.Sprintf("automated task %s params do not fit action %q: %s", n.ID, cfg.Action, errorMessage(err)))
	}
}

func (c *semanticChecker) checkTimer(n schema.Node, path string) {
	var cfg schema.TimerConfig
	if !c.decode(n, path, &cfg) {
		return
	}

	switch {
	case cfg.Duration == "" && cfg.Schedule == "":
		c.result.AddError(path+".config", schema.ErrCodeConfig,
			fmt.Sprintf("timer node %s needs a duration or a schedule", n.ID))
		return
	case cfg.Duration != "" && cfg.Schedule != "":
		c.result.AddWarning(path+".config", schema.ErrCodeConfig,
			fmt.Sprintf("timer node %s sets both duration and schedule; schedule wins", n.ID))
	}

	if cfg.Duration != "" {
		c.checkDuration(n, path+".config.duration", "duration", cfg.Duration)
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			c.result.AddError(path+".config.schedule", schema.ErrCodeConfig,
				fmt.Sprintf("timer node %s has invalid schedule %q: %s", n.ID, cfg.Schedule, err.Error()))
		}
	}
}

func (c *semanticChecker) checkNotification(n schema.Node, path string) {
	var cfg schema.NotificationConfig
	if !c.decode(n, path, &cfg) {
		return
	}

	if !slices.Contains(notificationChannels, cfg.Channel) {
		c.result.AddError(path+".config.channel", schema.ErrCodeConfig,
			fmt.Sprintf("notification node %s has channel %q; expected one of %s",
				n.ID, cfg.Channel, strings.Join(notificationChannels, ", ")))
	}
	if len(cfg.Recipients) == 0 {
		c.result.AddError(path+".config.recipients", schema.ErrCodeConfig,
			fmt.Sprintf("notification node %s has no recipients", n.ID))
	}

	for _, f := range []struct{ key, text string }{
		{"subject", cfg.Subject},
		{"template", cfg.Template},
	} {
		for _, ref := range expressions.References(f.text) {
			c.checkReference(n, path+".config."+f.key, ref)
		}
	}
}

// checkReference flags ${{...}} references that can never resolve.
func (c *semanticChecker) checkReference(n schema.Node, path, ref string) {
	parts := strings.Split(ref, ".")
	switch parts[0] {
	case "inputs", "workflow":
	case "steps":
		if len(parts) > 1 && !c.nodeIDs[parts[1]] {
			c.result.AddWarning(path, schema.ErrCodeExpression,
				fmt.Sprintf("node %s references output of nonexistent node %q", n.ID, parts[1]))
		}
	default:
		c.result.AddError(path, schema.ErrCodeExpression,
			fmt.Sprintf("node %s references unknown namespace %q in ${{%s}}", n.ID, parts[0], ref))
	}
}

func (c *semanticChecker) checkSubWorkflow(n schema.Node, path string) {
	var cfg schema.SubWorkflowConfig
	if !c.decode(n, path, &cfg) {
		return
	}
	if cfg.WorkflowID == "" {
		c.result.AddError(path+".config.workflowId", schema.ErrCodeConfig,
			fmt.Sprintf("sub-workflow node %s has no workflowId", n.ID))
	}
	if cfg.Version < 0 {
		c.result.AddError(path+".config.version", schema.ErrCodeConfig,
			fmt.Sprintf("sub-workflow node %s has negative version", n.ID))
	}
}

func (c *semanticChecker) checkDuration(n schema.Node, path, key, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		c.result.AddError(path, schema.ErrCodeConfig,
			fmt.Sprintf("%s node %s has invalid %s %q", n.Kind, n.ID, key, value))
		return
	}
	if d <= 0 {
		c.result.AddError(path, schema.ErrCodeConfig,
			fmt.Sprintf("%s node %s has non-positive %s %q", n.Kind, n.ID, key, value))
	}
}

// errorMessage prefers a CanvasError's bare message over its coded form.
func errorMessage(err error) string {
	if ce, ok := err.(*schema.CanvasError); ok {
		return ce.Message
	}
	return err.Error()
}
