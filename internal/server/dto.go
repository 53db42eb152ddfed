package server

import (
	"encoding/json"

	"harbor/internal/config"
	"harbor/internal/domain"
	"harbor/internal/engine"
	"harbor/internal/qa"
)

// Request payloads

type CreateDatasetRequest struct {
	ID          *string           `json:"id,omitempty"`
	Name        string            `json:"name" minLength:"1"`
	DatasetType string            `json:"dataset_type,omitempty"`
	Version     string            `json:"version,omitempty" pattern:"^v[0-9]+\\.[0-9]+$"`
	Stats       domain.StatsInput `json:"stats"`
}

type QAScoreRequest struct {
	Checks     qa.AutoCheck `json:"checks"`
	HumanScore *float64     `json:"human_score,omitempty" minimum:"0" maximum:"100"`
}

type QAReviewRequest struct {
	UploadID   string       `json:"upload_id" minLength:"1"`
	ReviewerID string       `json:"reviewer_id,omitempty"`
	Checks     qa.AutoCheck `json:"checks"`
	HumanScore float64      `json:"human_score" minimum:"0" maximum:"100"`
	Action     string       `json:"action,omitempty" enum:"approve,reject,request_edit"`
	Notes      string       `json:"notes,omitempty"`
}

// Responses

type ProfileResponse struct {
	DatasetType string            `json:"dataset_type"`
	Version     string            `json:"version"`
	Default     bool              `json:"default"`
	Thresholds  config.Thresholds `json:"thresholds"`
}

type StatusResponse struct {
	DatasetCounts map[string]int    `json:"dataset_counts"`
	Profiles      []ProfileResponse `json:"profiles"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func profileResponses(e engine.Engine) []ProfileResponse {
	out := []ProfileResponse{}
	if e.Config == nil {
		return out
	}
	for _, p := range e.Config.ActiveProfiles() {
		out = append(out, ProfileResponse{
			DatasetType: p.DatasetType,
			Version:     p.Version,
			Default:     p.DatasetType == e.Config.Certification.DefaultType,
			Thresholds:  p.Thresholds,
		})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
