package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeRoleChanged         = "identity.role_changed"
	EventTypeIdentityDeactivated = "identity.deactivated"
	EventTypeApprovalEscalated   = "approval.escalated"
)

type RoleChangedEvent struct {
	BaseEvent
	SubjectUserID     string `json:"subject_user_id"`
	PreviousRole      string `json:"previous_role"`
	NewRole           string `json:"new_role"`
	PreviousSeniority string `json:"previous_seniority"`
	NewSeniority      string `json:"new_seniority"`
	ChangedBy         string `json:"changed_by"`
}

func NewRoleChangedEvent(subjectUserID, previousRole, newRole, previousSeniority, newSeniority, changedBy string) *RoleChangedEvent {
	return &RoleChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRoleChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subject_user_id":    subjectUserID,
				"previous_role":      previousRole,
				"new_role":           newRole,
				"previous_seniority": previousSeniority,
				"new_seniority":      newSeniority,
				"changed_by":         changedBy,
			},
		},
		SubjectUserID:     subjectUserID,
		PreviousRole:      previousRole,
		NewRole:           newRole,
		PreviousSeniority: previousSeniority,
		NewSeniority:      newSeniority,
		ChangedBy:         changedBy,
	}
}

type IdentityDeactivatedEvent struct {
	BaseEvent
	SubjectUserID string `json:"subject_user_id"`
	ChangedBy     string `json:"changed_by"`
}

func NewIdentityDeactivatedEvent(subjectUserID, changedBy string) *IdentityDeactivatedEvent {
	return &IdentityDeactivatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeIdentityDeactivated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"subject_user_id": subjectUserID,
				"changed_by":      changedBy,
			},
		},
		SubjectUserID: subjectUserID,
		ChangedBy:     changedBy,
	}
}

type ApprovalEscalatedEvent struct {
	BaseEvent
	RequestID    string `json:"request_id"`
	RequesterID  string `json:"requester_id"`
	Amount       string `json:"amount"`
	ApproverRole string `json:"approver_role"`
}

func NewApprovalEscalatedEvent(requestID, requesterID, amount, approverRole string) *ApprovalEscalatedEvent {
	return &ApprovalEscalatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeApprovalEscalated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id":    requestID,
				"requester_id":  requesterID,
				"amount":        amount,
				"approver_role": approverRole,
			},
		},
		RequestID:    requestID,
		RequesterID:  requesterID,
		Amount:       amount,
		ApproverRole: approverRole,
	}
}
