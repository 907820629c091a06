package models

import "time"

// RecordStatus captures the review lifecycle of an archive record.
type RecordStatus string

const (
	StatusPending          RecordStatus = "PENDING"
	StatusApproved         RecordStatus = "APPROVED"
	StatusRejected         RecordStatus = "REJECTED"
	StatusChangesRequested RecordStatus = "CHANGES_REQUESTED"
)

// Valid reports whether the value is a known status.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusChangesRequested:
		return true
	}
	return false
}

// MinDiscoveryYear bounds the earliest accepted discovery year.
const MinDiscoveryYear = 1900

// Record is a parasite or microscopy sample entry in the archive.
// Field names are canonical; legacy column spellings are absorbed by
// aliases at the repository boundary.
type Record struct {
	ID             string       `db:"id" json:"id"`
	ScientificName string       `db:"scientific_name" json:"scientific_name"`
	CommonName     string       `db:"common_name" json:"common_name,omitempty"`
	ArabicName     string       `db:"arabic_name" json:"arabic_name,omitempty"`
	FrenchName     string       `db:"french_name" json:"french_name,omitempty"`
	Description    string       `db:"description" json:"description,omitempty"`
	DescriptionAr  string       `db:"description_ar" json:"description_ar,omitempty"`
	DescriptionFr  string       `db:"description_fr" json:"description_fr,omitempty"`
	HostSpecies    string       `db:"host_species" json:"host_species,omitempty"`
	Type           string       `db:"type" json:"type,omitempty"`
	Stage          string       `db:"stage" json:"stage,omitempty"`
	SampleType     string       `db:"sample_type" json:"sample_type,omitempty"`
	StainColor     string       `db:"stain_color" json:"stain_color,omitempty"`
	DiscoveryYear  *int         `db:"discovery_year" json:"discovery_year,omitempty"`
	ImageURL       string       `db:"image_url" json:"image_url,omitempty"`
	Status         RecordStatus `db:"status" json:"status"`
	StudentName    string       `db:"student_name" json:"student_name,omitempty"`
	SupervisorName string       `db:"supervisor_name" json:"supervisor_name,omitempty"`
	UploadedBy     string       `db:"uploaded_by" json:"uploaded_by,omitempty"`
	ReviewedBy     *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNotes    *string      `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
	ReviewedAt     *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

// HasImage reports whether the record carries a stored image path.
func (r Record) HasImage() bool {
	return r.ImageURL != ""
}

// RecordFilter constrains repository listing queries.
type RecordFilter struct {
	Status      []RecordStatus
	HostSpecies string
	Year        *int
	Search      string
	UploadedBy  string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
