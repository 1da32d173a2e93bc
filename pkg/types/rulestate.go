package types

// RuleState is the lifecycle stage of a rule within a dataset.
// Rules move draft -> testing -> canary -> active, or sideways into
// deprecated/quarantined; only active and canary rules are ever evaluated.
type RuleState string

const (
	RuleStateDraft       RuleState = "draft"
	RuleStateTesting     RuleState = "testing"
	RuleStateCanary      RuleState = "canary"
	RuleStateActive      RuleState = "active"
	RuleStateDeprecated  RuleState = "deprecated"
	RuleStateQuarantined RuleState = "quarantined"
)

var knownRuleStates = map[RuleState]bool{
	RuleStateDraft:       true,
	RuleStateTesting:     true,
	RuleStateCanary:      true,
	RuleStateActive:      true,
	RuleStateDeprecated:  true,
	RuleStateQuarantined: true,
}

// IsValid reports whether s is a known rule state.
func (s RuleState) IsValid() bool {
	return knownRuleStates[s]
}

// Evaluable reports whether rules in this state should be run against input.
func (s RuleState) Evaluable() bool {
	return s == RuleStateActive || s == RuleStateCanary
}
