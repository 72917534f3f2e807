// Package sla computes resolution deadlines and flags exceptions that miss them.
package sla

import (
	"context"
	"time"

	"exceptiontracker/src/model"
)

// RuleSource looks up the active SLA rule for a severity. It returns (nil, nil)
// when no active rule exists.
type RuleSource interface {
	FindActiveBySeverity(ctx context.Context, severity model.Severity) (*model.SLARule, error)
}

// DueDate returns createdAt plus the active resolution budget for severity,
// or nil when no active rule covers it.
func DueDate(ctx context.Context, rules RuleSource, severity model.Severity, createdAt time.Time) (*time.Time, error) {
	rule, err := rules.FindActiveBySeverity(ctx, severity)
	if err != nil {
		return nil, err
	}
	if rule == nil || !rule.Active || rule.ResolutionTimeHours <= 0 {
		return nil, nil
	}
	due := createdAt.Add(time.Duration(rule.ResolutionTimeHours) * time.Hour)
	return &due, nil
}
