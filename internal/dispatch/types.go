package dispatch

import (
	"strings"
	"time"
)

// Kind classifies the field work a task dispatches.
type Kind string

const (
	KindDispute  Kind = "dispute"
	KindLegalAid Kind = "legal_aid"
)

// ParseKind normalizes and validates a task kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.TrimSpace(strings.ToLower(s))) {
	case KindDispute:
		return KindDispute, true
	case KindLegalAid:
		return KindLegalAid, true
	default:
		return "", false
	}
}

// Status is a task's position in the lifecycle. The only edges are
// Reported -> Assigned -> Processing -> Completed.
type Status string

const (
	StatusReported   Status = "reported"
	StatusAssigned   Status = "assigned"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.TrimSpace(strings.ToLower(s))) {
	case StatusReported:
		return StatusReported, true
	case StatusAssigned:
		return StatusAssigned, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// next returns the single legal successor of each status; Completed is
// terminal.
func (s Status) next() (Status, bool) {
	switch s {
	case StatusReported:
		return StatusAssigned, true
	case StatusAssigned:
		return StatusProcessing, true
	case StatusProcessing:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// CanAdvanceTo reports whether target is the legal next status.
func (s Status) CanAdvanceTo(target Status) bool {
	next, ok := s.next()
	return ok && next == target
}

// Unfinished reports whether the task still needs field work.
func (s Status) Unfinished() bool {
	return s != StatusCompleted
}

// Resolution is the payload accompanying completion. Its content is opaque
// to the lifecycle beyond the presence of a result.
type Resolution struct {
	Result        string   `json:"result"`
	Detail        string   `json:"detail,omitempty"`
	Process       string   `json:"process,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// Task is a unit of dispatched field work. GridID is immutable once set;
// attachment ids ride through as opaque references to the media
// collaborator.
type Task struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Kind        Kind   `json:"kind"`
	Status      Status `json:"status"`
	Description string `json:"description"`

	PartyName    string `json:"party_name"`
	PartyPhone   string `json:"party_phone,omitempty"`
	PartyAddress string `json:"party_address,omitempty"`

	GridID        string    `json:"grid_id"`
	ReporterID    string    `json:"reporter_id"`
	ReportedAt    time.Time `json:"reported_at"`
	AttachmentIDs []string  `json:"attachment_ids,omitempty"`

	AssignerID string     `json:"assigner_id,omitempty"`
	MediatorID string     `json:"mediator_id,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	HandleMethod string     `json:"handle_method,omitempty"`
	ExpectedPlan string     `json:"expected_plan,omitempty"`
	Participants string     `json:"participants,omitempty"`
	ProcessAt    *time.Time `json:"process_at,omitempty"`

	Resolution  *Resolution `json:"resolution,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
