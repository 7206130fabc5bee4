package pipeline

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/models"
)

// Rule conditions.
const (
	CondCategory   = "category"
	CondSourceTool = "source_tool"
	CondKeyword    = "keyword"
	CondCountAbove = "count_above"
)

// Rule adjusts an alert's severity when its condition matches. An
// escalate-only rule never lowers severity.
type Rule struct {
	Name         string
	Condition    string
	Value        string
	Target       models.Severity
	EscalateOnly bool
}

// DefaultRules escalate intrusions, malware and noisy repeats.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "critical_intrusion", Condition: CondCategory, Value: models.AlertCategoryIntrusion, Target: models.SeverityHigh, EscalateOnly: true},
		{Name: "malware_escalate", Condition: CondCategory, Value: models.AlertCategoryMalware, Target: models.SeverityHigh, EscalateOnly: true},
		{Name: "repeated_high", Condition: CondCountAbove, Value: "10", Target: models.SeverityCritical, EscalateOnly: true},
	}
}

// Classifier applies an ordered rule list to normalized alerts.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier; nil rules means the defaults.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the final severity for an alert and its occurrence
// count.
func (c *Classifier) Classify(alert NormalizedAlert, occurrenceCount int) models.Severity {
	current := alert.Severity
	for _, rule := range c.rules {
		if !rule.matches(alert, occurrenceCount) {
			continue
		}
		if rule.EscalateOnly && rule.Target.Level() <= current.Level() {
			continue
		}
		log.Debug().Str("rule", rule.Name).
			Str("from", string(current)).Str("to", string(rule.Target)).
			Msg("Severity rule fired")
		current = rule.Target
	}
	return current
}

func (r Rule) matches(alert NormalizedAlert, count int) bool {
	switch r.Condition {
	case CondCategory:
		return alert.Category == r.Value
	case CondSourceTool:
		return alert.SourceTool == r.Value
	case CondKeyword:
		return strings.Contains(strings.ToLower(alert.Title), strings.ToLower(r.Value))
	case CondCountAbove:
		threshold, err := strconv.Atoi(r.Value)
		return err == nil && count > threshold
	}
	return false
}
