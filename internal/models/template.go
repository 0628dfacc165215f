// internal/models/template.go
package models

import "time"

// ScheduleRule describes how occurrences of a recurring template or task repeat.
type ScheduleRule struct {
	Frequency Frequency  `json:"frequency"`
	DayRule   string     `json:"dayRule,omitempty"` // e.g. "1st", "15th", "last business day"
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// IsRecurring reports whether the rule carries a usable frequency.
func (r ScheduleRule) IsRecurring() bool {
	return r.Frequency != ""
}

// ChecklistItemDef is one item definition inside a template, in checklist order.
type ChecklistItemDef struct {
	Particular   string `json:"particular"`
	DocumentType string `json:"documentType"`
	Mandatory    bool   `json:"mandatory"`
	DependsOn    string `json:"dependsOn,omitempty"` // particular of another item
}

// Template is a reusable definition of a collection task's schedule and checklist.
// Editing a template bumps Version; instances keep the version they were created
// from and are never retroactively mutated.
type Template struct {
	ID              string             `json:"id"`
	OrgID           string             `json:"orgId"`
	Name            string             `json:"name"`
	TaskType        TaskType           `json:"taskType"`
	Schedule        ScheduleRule       `json:"schedule"`
	Items           []ChecklistItemDef `json:"items"`
	DefaultPriority Priority           `json:"defaultPriority"`
	SLADays         int                `json:"slaDays"`
	Visibility      string             `json:"visibility"`
	Version         int                `json:"version"`
	CreatedBy       string             `json:"createdBy"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}
