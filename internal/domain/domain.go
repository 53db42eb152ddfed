package domain

import (
	"fmt"
	"strings"
)

// Dataset build statuses. A build only ever moves forward through this list.
const (
	StatusBuilding              = "building"
	StatusReadyForCertification = "ready_for_certification"
	StatusCertified             = "certified"
	StatusPublished             = "published"
)

// DatasetStats is the quality snapshot a build is certified against.
type DatasetStats struct {
	TotalHours           float64 `json:"total_hours"`
	ContributorCount     int     `json:"contributor_count"`
	AvgQAScore           float64 `json:"avg_qa_score"`
	AnnotationAgreement  float64 `json:"annotation_agreement"`
	RejectionRate        float64 `json:"rejection_rate"`
	MetadataCompleteness float64 `json:"metadata_completeness"`
}

// StatsInput is a stats snapshot as supplied by the assembly pipeline.
// Every field is required; nil means the producer did not measure it.
type StatsInput struct {
	TotalHours           *float64 `json:"total_hours"`
	ContributorCount     *int     `json:"contributor_count"`
	AvgQAScore           *float64 `json:"avg_qa_score"`
	AnnotationAgreement  *float64 `json:"annotation_agreement"`
	RejectionRate        *float64 `json:"rejection_rate"`
	MetadataCompleteness *float64 `json:"metadata_completeness"`
}

// Complete returns the snapshot or an error naming every missing field.
func (in StatsInput) Complete() (DatasetStats, error) {
	var missing []string
	if in.TotalHours == nil {
		missing = append(missing, "total_hours")
	}
	if in.ContributorCount == nil {
		missing = append(missing, "contributor_count")
	}
	if in.AvgQAScore == nil {
		missing = append(missing, "avg_qa_score")
	}
	if in.AnnotationAgreement == nil {
		missing = append(missing, "annotation_agreement")
	}
	if in.RejectionRate == nil {
		missing = append(missing, "rejection_rate")
	}
	if in.MetadataCompleteness == nil {
		missing = append(missing, "metadata_completeness")
	}
	if len(missing) > 0 {
		return DatasetStats{}, fmt.Errorf("missing stats: %s", strings.Join(missing, ", "))
	}
	return DatasetStats{
		TotalHours:           *in.TotalHours,
		ContributorCount:     *in.ContributorCount,
		AvgQAScore:           *in.AvgQAScore,
		AnnotationAgreement:  *in.AnnotationAgreement,
		RejectionRate:        *in.RejectionRate,
		MetadataCompleteness: *in.MetadataCompleteness,
	}, nil
}

// StatsInputFrom wraps a complete snapshot as input.
func StatsInputFrom(s DatasetStats) StatsInput {
	return StatsInput{
		TotalHours:           &s.TotalHours,
		ContributorCount:     &s.ContributorCount,
		AvgQAScore:           &s.AvgQAScore,
		AnnotationAgreement:  &s.AnnotationAgreement,
		RejectionRate:        &s.RejectionRate,
		MetadataCompleteness: &s.MetadataCompleteness,
	}
}

type DatasetBuild struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	DatasetType    string       `json:"dataset_type"`
	Version        string       `json:"version"`
	Status         string       `json:"status" enum:"building,ready_for_certification,certified,published"`
	Stats          DatasetStats `json:"stats"`
	ProfileType    string       `json:"profile_type,omitempty"`
	ProfileVersion string       `json:"profile_version,omitempty"`
	CertifiedAt    *string      `json:"certified_at,omitempty" format:"date-time"`
	QAReportURL    *string      `json:"qa_report_url,omitempty"`
	CreatedAt      string       `json:"created_at" format:"date-time"`
	UpdatedAt      string       `json:"updated_at" format:"date-time"`
}

// CertificationResult is the outcome of one certification attempt.
// Errors is empty iff Success; Dataset is set only on success.
type CertificationResult struct {
	Success bool          `json:"success"`
	Errors  []string      `json:"errors"`
	Dataset *DatasetBuild `json:"dataset,omitempty"`
}

type QAReview struct {
	ID               string  `json:"id"`
	UploadID         string  `json:"upload_id"`
	ReviewerID       string  `json:"reviewer_id"`
	AutoScore        float64 `json:"auto_score"`
	HumanScore       float64 `json:"human_score"`
	FinalScore       float64 `json:"final_score"`
	Band             string  `json:"band" enum:"approved,approved_notes,reject"`
	Action           string  `json:"action" enum:"approve,reject,request_edit"`
	Notes            string  `json:"notes,omitempty"`
	IncludeInDataset bool    `json:"include_in_dataset"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
