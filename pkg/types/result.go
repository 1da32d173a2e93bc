package types

import "time"

// ScanResult is the verdict returned for one PreparedInput.
type ScanResult struct {
	Status           ScanStatus  `json:"status"`
	Matches          []RuleMatch `json:"matches,omitempty"`
	RuleSetVersion   string      `json:"rule_set_version"`
	IsCode           bool        `json:"is_code"`
	CodeConfidence   float64     `json:"code_confidence"`
	EnsembleScore    *float64    `json:"ensemble_score,omitempty"`
	MLSuspicionScore *float64    `json:"ml_suspicion_score,omitempty"`
	AuditToken       string      `json:"audit_token"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
	Timestamp        time.Time   `json:"timestamp"`
	ScannerVersion   string      `json:"scanner_version"`
	Note             string      `json:"note,omitempty"`
	Error            string      `json:"error,omitempty"`
}
