// internal/models/request.go
package models

import "time"

// DataRequest is a client-facing collection instance.
type DataRequest struct {
	ID              string        `json:"id"`
	OrgID           string        `json:"orgId"`
	RequestNumber   string        `json:"requestNumber"`
	TemplateID      string        `json:"templateId,omitempty"`
	TemplateVersion int           `json:"templateVersion,omitempty"`
	TaskID          string        `json:"taskId,omitempty"`
	ClientID        string        `json:"clientId"`
	Recipient       string        `json:"recipient"` // delivery address for reminders
	Status          RequestStatus `json:"status"`
	Priority        Priority      `json:"priority"`
	DueDate         *time.Time    `json:"dueDate,omitempty"`
	Channels        []Channel     `json:"channels"`
	SentAt          *time.Time    `json:"sentAt,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	Version         int64         `json:"version"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// HasChannel reports whether the given channel is enabled on the request.
func (r *DataRequest) HasChannel(c Channel) bool {
	for _, ch := range r.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// RequestChecklistItem is one item to collect under a DataRequest.
// ClientComment is visible to the client; InternalComment is not.
type RequestChecklistItem struct {
	ID              string     `json:"id"`
	RequestID       string     `json:"requestId"`
	OrgID           string     `json:"orgId"`
	Particular      string     `json:"particular"`
	DocumentType    string     `json:"documentType"`
	Mandatory       bool       `json:"mandatory"`
	Status          ItemStatus `json:"status"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ClientComment   string     `json:"clientComment,omitempty"`
	InternalComment string     `json:"internalComment,omitempty"`
	Cycle           int        `json:"cycle"` // bumped on each re-request
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
