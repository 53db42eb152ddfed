package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"harbor/internal/domain"
	"harbor/internal/events"
)

// MemoryStore keeps datasets, reviews and events in process memory. It
// satisfies the same contract as Repo, including the status check on
// PutDataset, and is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[string]domain.DatasetBuild
	reviews  []domain.QAReview
	events   []domain.Event
	nextID   int64
	Now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{datasets: map[string]domain.DatasetBuild{}, Now: time.Now}
}

func (m *MemoryStore) GetDataset(_ context.Context, id string) (domain.DatasetBuild, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.datasets[id]
	if !ok {
		return domain.DatasetBuild{}, ErrNotFound
	}
	return cloneDataset(d), nil
}

func (m *MemoryStore) InsertDataset(_ context.Context, d domain.DatasetBuild, change Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.datasets[d.ID]; ok {
		return fmt.Errorf("dataset %s already exists: %w", d.ID, ErrConflict)
	}
	if err := m.appendLocked(change); err != nil {
		return err
	}
	m.datasets[d.ID] = cloneDataset(d)
	return nil
}

func (m *MemoryStore) PutDataset(_ context.Context, d domain.DatasetBuild, expectStatus string, change Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.datasets[d.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expectStatus {
		return ErrConflict
	}
	if err := m.appendLocked(change); err != nil {
		return err
	}
	m.datasets[d.ID] = cloneDataset(d)
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, change Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(change)
}

func (m *MemoryStore) appendLocked(c Change) error {
	if c.Type == "" {
		return nil
	}
	payload, err := events.Marshal(c.Payload)
	if err != nil {
		return err
	}
	actor := c.ActorID
	if actor == "" {
		actor = "system"
	}
	now := m.Now
	if now == nil {
		now = time.Now
	}
	m.nextID++
	m.events = append(m.events, domain.Event{
		ID:         m.nextID,
		TS:         now().UTC().Format(time.RFC3339),
		Type:       c.Type,
		EntityKind: c.EntityKind,
		EntityID:   c.EntityID,
		ActorID:    actor,
		Payload:    payload,
	})
	return nil
}

func (m *MemoryStore) ListDatasets(_ context.Context, f DatasetFilters) ([]domain.DatasetBuild, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.DatasetBuild
	for _, d := range m.datasets {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.DatasetType != "" && d.DatasetType != f.DatasetType {
			continue
		}
		res = append(res, cloneDataset(d))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID > res[j].ID
	})
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (m *MemoryStore) InsertQAReview(_ context.Context, q domain.QAReview, change Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.ID == q.ID {
			return fmt.Errorf("qa review %s already exists: %w", q.ID, ErrConflict)
		}
	}
	if err := m.appendLocked(change); err != nil {
		return err
	}
	m.reviews = append(m.reviews, q)
	return nil
}

func (m *MemoryStore) ListQAReviews(_ context.Context, uploadID string) ([]domain.QAReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.QAReview
	for _, q := range m.reviews {
		if uploadID == "" || q.UploadID == uploadID {
			res = append(res, q)
		}
	}
	return res, nil
}

func (m *MemoryStore) LatestEvents(_ context.Context, f EventFilters) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f.Limit <= 0 {
		f.Limit = 20
	}
	var res []domain.Event
	for i := len(m.events) - 1; i >= 0 && len(res) < f.Limit; i-- {
		e := m.events[i]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.EntityKind != "" && e.EntityKind != f.EntityKind {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Before > 0 && e.ID >= f.Before {
			continue
		}
		res = append(res, e)
	}
	return res, nil
}

func (m *MemoryStore) EventsAfter(_ context.Context, limit int, cursor int64) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var res []domain.Event
	for _, e := range m.events {
		if e.ID <= cursor {
			continue
		}
		res = append(res, e)
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

func (m *MemoryStore) LatestEventID(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID, nil
}

// cloneDataset copies the pointer fields so callers never share storage.
func cloneDataset(d domain.DatasetBuild) domain.DatasetBuild {
	if d.CertifiedAt != nil {
		v := *d.CertifiedAt
		d.CertifiedAt = &v
	}
	if d.QAReportURL != nil {
		v := *d.QAReportURL
		d.QAReportURL = &v
	}
	return d
}
