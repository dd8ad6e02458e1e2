package model

import (
	"time"

	"github.com/google/uuid"
)

type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "ASSIGNED"
	AssignmentStatusInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusCompleted  AssignmentStatus = "COMPLETED"
	AssignmentStatusDeclined   AssignmentStatus = "DECLINED"
)

// Terminal reports whether no further transition is possible.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentStatusCompleted, AssignmentStatusDeclined:
		return true
	default:
		return false
	}
}

// Open statuses count against the one-open-assignment-per-case rule.
func (s AssignmentStatus) Open() bool {
	switch s {
	case AssignmentStatusAssigned, AssignmentStatusInProgress:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes ASSIGNED -> IN_PROGRESS -> COMPLETED, with DECLINED
// reachable from both open states.
func (s AssignmentStatus) CanTransitionTo(to AssignmentStatus) bool {
	switch s {
	case AssignmentStatusAssigned:
		return to == AssignmentStatusInProgress || to == AssignmentStatusDeclined
	case AssignmentStatusInProgress:
		return to == AssignmentStatusCompleted || to == AssignmentStatusDeclined
	default:
		return false
	}
}

type CaseAssignment struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	CaseID         uuid.UUID        `db:"case_id" json:"case_id"`
	ProfessionalID uuid.UUID        `db:"professional_id" json:"professional_id"`
	Status         AssignmentStatus `db:"status" json:"status"`
	AssignedAt     time.Time        `db:"assigned_at" json:"assigned_at"`
	CompletedAt    *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// Assignment event types published on the assignment events channel.
const (
	EventAssignmentCreated   = "assignment.created"
	EventAssignmentAccepted  = "assignment.accepted"
	EventAssignmentCompleted = "assignment.completed"
	EventAssignmentDeclined  = "assignment.declined"
)

// AssignmentEvent is published when an assignment changes state.
type AssignmentEvent struct {
	Type           string           `json:"type"`
	AssignmentID   uuid.UUID        `json:"assignment_id"`
	CaseID         uuid.UUID        `json:"case_id"`
	ProfessionalID uuid.UUID        `json:"professional_id"`
	Status         AssignmentStatus `json:"status"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
