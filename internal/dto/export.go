package dto

import "github.com/helmintheca/archive-api/internal/models"

// ExportRequest asks for an asynchronous catalog or statistics export.
// Status narrows a catalog export to one review state; reviewers use it
// to dump the pending backlog.
type ExportRequest struct {
	Type        models.ExportType   `json:"type" validate:"required,oneof=catalog statistics contributors"`
	Format      models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	HostSpecies string              `json:"host_species,omitempty"`
	Year        *int                `json:"year,omitempty"`
	Status      models.RecordStatus `json:"status,omitempty" validate:"omitempty,oneof=PENDING APPROVED REJECTED CHANGES_REQUESTED"`
}

// ExportJobResponse acknowledges job creation.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse reports job progress and, once finished, the
// signed download URL.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
