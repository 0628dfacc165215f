// internal/models/verification.go
package models

// MatchStatus is the outcome reported by the external AI verification producer.
type MatchStatus string

const (
	MatchStatusMatched    MatchStatus = "matched"
	MatchStatusMismatched MatchStatus = "mismatched"
	MatchStatusUnverified MatchStatus = "unverified"
)

// VerificationResult is emitted by the external verification producer, keyed to
// a checklist item. The engine only reads MatchStatus to short-circuit manual
// review; it never computes these fields.
type VerificationResult struct {
	ItemID      string            `json:"itemId"`
	Expected    map[string]string `json:"expected,omitempty"`
	Actual      map[string]string `json:"actual,omitempty"`
	MatchStatus MatchStatus       `json:"matchStatus"`
	Confidence  float64           `json:"confidence"`
	Issues      []string          `json:"issues,omitempty"`
}
