// internal/models/approval.go
package models

import "time"

// Approval is a maker-checker record gating one entity. Action, ReviewedAt and
// ReviewerID are set together or not at all; all empty means pending.
type Approval struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"orgId"`
	Type        ApprovalType   `json:"type"`
	EntityID    string         `json:"entityId"`
	SubmittedBy string         `json:"submittedBy"`
	SubmittedAt time.Time      `json:"submittedAt"`
	ReviewerID  string         `json:"reviewerId,omitempty"`
	ReviewedAt  *time.Time     `json:"reviewedAt,omitempty"`
	Action      ApprovalAction `json:"action,omitempty"`
	Remarks     string         `json:"remarks,omitempty"`
	Version     int64          `json:"version"`
}

// Pending reports whether no reviewer decision has been recorded yet.
func (a *Approval) Pending() bool {
	return a.Action == ""
}
