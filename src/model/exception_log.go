package model

import "time"

// HistoryAction names the mutation recorded by a HistoryEntry.
type HistoryAction string

const (
	ActionCreate   HistoryAction = "create"
	ActionUpdate   HistoryAction = "update"
	ActionAssign   HistoryAction = "assign"
	ActionReassign HistoryAction = "reassign"
	ActionResolve  HistoryAction = "resolve"
	ActionClose    HistoryAction = "close"
	ActionEscalate HistoryAction = "escalate"
	ActionComment  HistoryAction = "comment"
)

// Values is a partial field snapshot stored alongside a history entry.
type Values map[string]interface{}

// ExceptionComment is a user annotation on an exception. Append-only.
type ExceptionComment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExceptionID uint      `gorm:"index;not null" json:"exception_id"`
	AuthorID    uint      `gorm:"index" json:"author_id"`
	Text        string    `gorm:"type:text;not null" json:"comment"`
	IsInternal  bool      `json:"is_internal"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExceptionHistory records one successful mutating operation. Append-only.
type ExceptionHistory struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	ExceptionID uint          `gorm:"index;not null" json:"exception_id"`
	Action      HistoryAction `gorm:"size:20;index" json:"action"`
	PerformedBy uint          `gorm:"index" json:"performed_by"`
	OldValues   Values        `gorm:"serializer:json" json:"old_values,omitempty"`
	NewValues   Values        `gorm:"serializer:json" json:"new_values,omitempty"`
	Description string        `gorm:"type:text" json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (ExceptionHistory) TableName() string { return "exception_history" }

// EscalationStatusActive is the status given to newly created escalation records.
const EscalationStatusActive = "active"

// ExceptionEscalation records a single escalation step. Append-only.
type ExceptionEscalation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ExceptionID   uint      `gorm:"index;not null" json:"exception_id"`
	EscalatedFrom *uint     `json:"escalated_from,omitempty"`
	EscalatedTo   *uint     `json:"escalated_to,omitempty"`
	EscalatedBy   uint      `json:"escalated_by"`
	Level         int       `json:"escalation_level"`
	Reason        string    `gorm:"type:text" json:"reason"`
	Status        string    `gorm:"size:20" json:"status"`
	EscalatedAt   time.Time `gorm:"index" json:"escalated_at"`
}

// SLARule maps a severity to its resolution-time budget.
type SLARule struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Severity            Severity  `gorm:"size:20;uniqueIndex" json:"severity"`
	ResolutionTimeHours int       `gorm:"not null" json:"resolution_time_hours"`
	Active              bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ExceptionSequence backs the human-readable exception numbers, one row per year.
type ExceptionSequence struct {
	Year      int       `gorm:"primaryKey;autoIncrement:false" json:"year"`
	LastValue int64     `gorm:"not null" json:"last_value"`
	UpdatedAt time.Time `json:"updated_at"`
}
