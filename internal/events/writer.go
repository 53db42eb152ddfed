package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	DatasetCreated       = "dataset.created"
	DatasetReady         = "dataset.ready"
	DatasetStatsRecorded = "dataset.stats.recorded"
	DatasetCertified     = "dataset.certified"
	DatasetRejected      = "dataset.certification.rejected"
	DatasetPublished     = "dataset.published"
	QAReviewed           = "qa.reviewed"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append inserts an event row inside the caller's transaction so it commits
// or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	data, err := Marshal(payload)
	if err != nil {
		return err
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, data)
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

// Marshal encodes a payload, treating nil as an empty object.
func Marshal(payload EventPayload) (string, error) {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	return string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
