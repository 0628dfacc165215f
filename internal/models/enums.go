// internal/models/enums.go
package models

// TaskType distinguishes one-shot work from recurring work.
type TaskType string

const (
	TaskTypeOneTime   TaskType = "one_time"
	TaskTypeRecurring TaskType = "recurring"
)

// Frequency is the recurrence frequency of a schedule rule.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
	FrequencyCustom    Frequency = "custom"
)

// TaskStatus is the lifecycle status of a Task.
type TaskStatus string

const (
	TaskStatusNotStarted      TaskStatus = "not_started"
	TaskStatusInProgress      TaskStatus = "in_progress"
	TaskStatusWaitingOnClient TaskStatus = "waiting_on_client"
	TaskStatusCompleted       TaskStatus = "completed"
	TaskStatusOverdue         TaskStatus = "overdue"
	TaskStatusCancelled       TaskStatus = "cancelled"
)

// OccurrenceStatus is the lifecycle status of a TaskOccurrence.
type OccurrenceStatus string

const (
	OccurrenceStatusPending    OccurrenceStatus = "pending"
	OccurrenceStatusInProgress OccurrenceStatus = "in_progress"
	OccurrenceStatusCompleted  OccurrenceStatus = "completed"
	OccurrenceStatusOverdue    OccurrenceStatus = "overdue"
	OccurrenceStatusSkipped    OccurrenceStatus = "skipped"
)

// RequestStatus is the derived status of a DataRequest.
type RequestStatus string

const (
	RequestStatusDraft      RequestStatus = "draft"
	RequestStatusSent       RequestStatus = "sent"
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"
	RequestStatusCancelled  RequestStatus = "cancelled"
)

// IsClosed reports whether the request accepts no further item transitions.
func (s RequestStatus) IsClosed() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// ItemStatus is the lifecycle status of a RequestChecklistItem.
type ItemStatus string

const (
	ItemStatusNotReceived ItemStatus = "not_received"
	ItemStatusReceived    ItemStatus = "received"
	ItemStatusUnderReview ItemStatus = "under_review"
	ItemStatusApproved    ItemStatus = "approved"
	ItemStatusRejected    ItemStatus = "rejected"
	ItemStatusReRequested ItemStatus = "re_requested"
)

// Channel identifies a follow-up delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelVoice    Channel = "voice"
	ChannelInApp    Channel = "in_app"
)

// ReminderType classifies what a Reminder follows up on.
type ReminderType string

const (
	ReminderTypeTask           ReminderType = "task"
	ReminderTypeRequest        ReminderType = "request"
	ReminderTypeDocumentExpiry ReminderType = "document_expiry"
	ReminderTypeCustom         ReminderType = "custom"
)

// ReminderStatus is the dispatch status of a Reminder.
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ApprovalType identifies which entity kind an Approval gates.
type ApprovalType string

const (
	ApprovalTypeDocument    ApprovalType = "document"
	ApprovalTypeRequestItem ApprovalType = "request_item"
	ApprovalTypeRequest     ApprovalType = "request"
	ApprovalTypeTask        ApprovalType = "task"
)

// ApprovalAction is a reviewer's decision. Empty means still pending.
type ApprovalAction string

const (
	ApprovalActionApproved  ApprovalAction = "approved"
	ApprovalActionRejected  ApprovalAction = "rejected"
	ApprovalActionReRequest ApprovalAction = "re_request"
)

// Priority of a task or request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)
