package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExceptionStatus is the workflow state of an Exception.
type ExceptionStatus string

const (
	StatusOpen       ExceptionStatus = "open"
	StatusInProgress ExceptionStatus = "in_progress"
	StatusResolved   ExceptionStatus = "resolved"
	StatusClosed     ExceptionStatus = "closed"
)

// Valid reports whether s is one of the known workflow states.
func (s ExceptionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsActive reports whether the exception is still being worked on,
// i.e. it counts towards backlog, overdue and SLA breach figures.
func (s ExceptionStatus) IsActive() bool {
	return s == StatusOpen || s == StatusInProgress
}

// Severity drives the SLA budget of an Exception.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// StringList is a list of strings stored as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported tags column type %T", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// MaxEscalationLevel is the highest level an exception can be escalated to.
const MaxEscalationLevel = 3

// Exception is an operational issue tracked through the resolution workflow.
type Exception struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Number string `gorm:"size:40;uniqueIndex" json:"exception_number"`

	// Classification
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Category    string     `gorm:"size:100;index" json:"category"`
	Severity    Severity   `gorm:"size:20;index" json:"severity"`
	Tags        StringList `gorm:"type:text" json:"tags,omitempty"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
	Priority    bool       `gorm:"index" json:"priority"`

	// Ownership and scope
	VerticalID   uint       `gorm:"not null;index" json:"vertical_id"`
	ProgramID    *uint      `gorm:"index" json:"program_id,omitempty"`
	CreatedBy    uint       `gorm:"index" json:"created_by"`
	AssignedTo   *uint      `gorm:"index" json:"assigned_to,omitempty"`
	AssignedDate *time.Time `json:"assigned_date,omitempty"`

	// Workflow state
	Status          ExceptionStatus `gorm:"size:20;index;not null" json:"status"`
	EscalationLevel int             `gorm:"not null;default:0" json:"escalation_level"`
	EscalationCount int             `gorm:"not null;default:0" json:"escalation_count"`
	LastEscalatedAt *time.Time      `json:"last_escalated_at,omitempty"`
	SLABreach       bool            `gorm:"column:sla_breach;not null;default:false;index" json:"sla_breach"`
	DueDate         *time.Time      `gorm:"index" json:"due_date,omitempty"`

	// Resolution and closure audit
	ResolutionNotes string     `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *uint      `json:"resolved_by,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosedBy        *uint      `json:"closed_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAssignedTo reports whether the exception is currently assigned to userID.
func (e *Exception) IsAssignedTo(userID uint) bool {
	return e.AssignedTo != nil && *e.AssignedTo == userID
}

// IsOverdue reports whether an active exception has passed its due date.
func (e *Exception) IsOverdue(now time.Time) bool {
	return e.Status.IsActive() && e.DueDate != nil && e.DueDate.Before(now)
}

// ExceptionPatch carries the editable fields of an exception. Nil means "unchanged".
type ExceptionPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Severity    *Severity  `json:"severity,omitempty"`
	VerticalID  *uint      `json:"vertical_id,omitempty"`
	ProgramID   *uint      `json:"program_id,omitempty"`
	AssignedTo  *uint      `json:"assigned_to,omitempty"`
	Priority    *bool      `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// CreateExceptionInput is the payload accepted by the create operation.
type CreateExceptionInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Severity    Severity   `json:"severity"`
	VerticalID  uint       `json:"vertical_id"`
	ProgramID   *uint      `json:"program_id,omitempty"`
	AssignedTo  *uint      `json:"assigned_to,omitempty"`
	Priority    bool       `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}
