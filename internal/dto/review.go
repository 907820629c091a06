package dto

import "github.com/helmintheca/archive-api/internal/models"

// ReviewAction enumerates reviewer decisions on a pending record.
type ReviewAction string

const (
	ReviewActionApprove        ReviewAction = "approve"
	ReviewActionReject         ReviewAction = "reject"
	ReviewActionRequestChanges ReviewAction = "request_changes"
)

// ReviewRequest is the payload for PUT /records/{id}/status.
type ReviewRequest struct {
	Action ReviewAction `json:"action" validate:"required,oneof=approve reject request_changes"`
	Notes  string       `json:"notes"`
}

// ReviewQueueQuery constrains the reviewer queue listing.
type ReviewQueueQuery struct {
	Status   []models.RecordStatus
	Search   string
	Page     int
	PageSize int
}
