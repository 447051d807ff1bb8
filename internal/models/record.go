package models

import (
	"fmt"
	"strings"
	"time"

	"example.com/backstage/services/airlogistic/internal/domain"
)

// RecordState defines the workflow state of a sample record
type RecordState = domain.Status

const (
	// RecordDraft represents a newly created record
	RecordDraft RecordState = "draft"
	// RecordConfirmed represents a confirmed record
	RecordConfirmed RecordState = "confirmed"
	// RecordInProgress represents a record being worked on
	RecordInProgress RecordState = "in_progress"
	// RecordDone represents a completed record (terminal)
	RecordDone RecordState = "done"
	// RecordCancelled represents a cancelled record
	RecordCancelled RecordState = "cancelled"
)

// Sample record transitions
const (
	RecordTransitionConfirm = "confirm"
	RecordTransitionStart   = "start"
	RecordTransitionDone    = "done"
	RecordTransitionCancel  = "cancel"
	RecordTransitionReset   = "reset"
)

// RecordMachine is the status graph for sample records. Completion marks
// progress 100 and reset zeroes it; those transition-coupled updates are
// applied by the record service.
var RecordMachine = domain.NewMachine("sample_record",
	domain.Transition{Name: RecordTransitionConfirm, Sources: []domain.Status{RecordDraft}, Target: RecordConfirmed},
	domain.Transition{Name: RecordTransitionStart, Sources: []domain.Status{RecordConfirmed}, Target: RecordInProgress},
	domain.Transition{Name: RecordTransitionDone, Sources: []domain.Status{RecordConfirmed, RecordInProgress}, Target: RecordDone},
	domain.Transition{Name: RecordTransitionCancel, Sources: []domain.Status{RecordDraft, RecordConfirmed, RecordInProgress, RecordCancelled}, Target: RecordCancelled},
	domain.Transition{Name: RecordTransitionReset, Sources: []domain.Status{RecordDraft, RecordConfirmed, RecordInProgress, RecordDone, RecordCancelled}, Target: RecordDraft},
)

// RecordPriority defines the priority of a sample record
type RecordPriority string

const (
	PriorityLow    RecordPriority = "low"
	PriorityNormal RecordPriority = "normal"
	PriorityHigh   RecordPriority = "high"
	PriorityUrgent RecordPriority = "urgent"
)

// Valid reports whether the priority is one of the known levels.
func (p RecordPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SampleRecord represents a generic workflow record with owned lines
type SampleRecord struct {
	Base
	Name        string         `json:"name"`
	Description string         `json:"description"`
	State       RecordState    `json:"state" gorm:"default:draft"`
	Priority    RecordPriority `json:"priority" gorm:"default:normal"`
	Progress    float64        `json:"progress"`
	Deadline    *time.Time     `json:"deadline"`
	AssigneeID  string         `json:"assignee_id" gorm:"index"`

	// Lines are owned: deleting the record cascades to them.
	Lines []SampleLine `json:"lines,omitempty" gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE"`
	Tags  []SampleTag  `json:"tags,omitempty" gorm:"many2many:sample_record_tags"`

	// Derived aggregates over the owned lines.
	LineCount   int     `json:"line_count"`
	TotalAmount float64 `json:"total_amount"`
	DisplayName string  `json:"display_name"`
}

// Validate runs the record rule table against the proposed state.
func (r *SampleRecord) Validate() []domain.Violation {
	var violations []domain.Violation
	appendIf := func(v *domain.Violation) {
		if v != nil {
			violations = append(violations, *v)
		}
	}

	appendIf(domain.CheckRequired("name", r.Name))
	appendIf(domain.CheckPercentRange("progress", r.Progress))
	if !r.Priority.Valid() {
		violations = append(violations, domain.Violation{
			Code:    domain.CodeOutOfRange,
			Field:   "priority",
			Message: fmt.Sprintf("unknown priority %q", r.Priority),
			Value:   string(r.Priority),
		})
	}

	return violations
}

// Recompute refreshes the derived fields from the owned lines. Idempotent;
// must run after every line insert, removal or update.
func (r *SampleRecord) Recompute(lines []SampleLine) {
	r.LineCount = 0
	r.TotalAmount = 0
	for i := range lines {
		r.LineCount++
		r.TotalAmount += lines[i].Amount
	}
	r.DisplayName = fmt.Sprintf("[%s] %s", strings.ToUpper(string(r.State)), r.Name)
}

// SampleLine is a line owned by a sample record
type SampleLine struct {
	Base
	RecordID string  `json:"record_id" gorm:"type:uuid;index"`
	Name     string  `json:"name"`
	Sequence int     `json:"sequence" gorm:"default:10"`
	Quantity float64 `json:"quantity" gorm:"default:1"`
	Price    float64 `json:"price"`

	// Derived.
	Amount float64 `json:"amount"`
}

// Validate runs the line rule table against the proposed state.
func (l *SampleLine) Validate() []domain.Violation {
	var violations []domain.Violation
	if v := domain.CheckRequired("name", l.Name); v != nil {
		violations = append(violations, *v)
	}
	if v := domain.CheckNonNegative("quantity", l.Quantity); v != nil {
		violations = append(violations, *v)
	}
	return violations
}

// Recompute refreshes the line amount.
func (l *SampleLine) Recompute() {
	l.Amount = l.Quantity * l.Price
}

// SampleTag labels sample records; tag names are unique
type SampleTag struct {
	Base
	Name  string `json:"name" gorm:"uniqueIndex"`
	Color int    `json:"color"`
}
