package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"harbor/internal/config"
	"harbor/internal/domain"
	"harbor/internal/events"
	"harbor/internal/repo"
)

// Store is the persistence the engine needs. repo.Repo and repo.MemoryStore
// both satisfy it.
type Store interface {
	GetDataset(ctx context.Context, id string) (domain.DatasetBuild, error)
	InsertDataset(ctx context.Context, d domain.DatasetBuild, change repo.Change) error
	PutDataset(ctx context.Context, d domain.DatasetBuild, expectStatus string, change repo.Change) error
	AppendEvent(ctx context.Context, change repo.Change) error
	ListDatasets(ctx context.Context, f repo.DatasetFilters) ([]domain.DatasetBuild, error)
	InsertQAReview(ctx context.Context, q domain.QAReview, change repo.Change) error
	ListQAReviews(ctx context.Context, uploadID string) ([]domain.QAReview, error)
	LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error)
}

type Engine struct {
	Store  Store
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time

	locks *keyedMutex
}

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatsIncomplete   = errors.New("stats incomplete")
	ErrInvalidInput      = errors.New("invalid input")
)

const entityDataset = "dataset"

func New(store Store, cfg *config.Config) Engine {
	return Engine{
		Store:  store,
		Config: cfg,
		Logger: zap.NewNop(),
		Now:    time.Now,
		locks:  newKeyedMutex(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

var versionPattern = regexp.MustCompile(`^v(\d+)\.(\d+)$`)

// DatasetCreateOptions are parameters for registering a new build.
type DatasetCreateOptions struct {
	ID          string
	Name        string
	DatasetType string
	Version     string
	Stats       domain.StatsInput
	ActorID     string
}

// CreateDataset registers a build in the building state. The stats snapshot
// must be complete.
func (e Engine) CreateDataset(ctx context.Context, opts DatasetCreateOptions) (domain.DatasetBuild, error) {
	if e.Config == nil {
		return domain.DatasetBuild{}, errors.New("config not loaded")
	}
	if opts.Name == "" {
		return domain.DatasetBuild{}, fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	if opts.DatasetType == "" {
		opts.DatasetType = e.Config.Certification.DefaultType
	}
	if opts.DatasetType == "" {
		return domain.DatasetBuild{}, fmt.Errorf("dataset type is required: %w", ErrInvalidInput)
	}
	if _, err := e.Config.Profile(opts.DatasetType); err != nil {
		return domain.DatasetBuild{}, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if opts.Version == "" {
		opts.Version = "v1.0"
	}
	if !versionPattern.MatchString(opts.Version) {
		return domain.DatasetBuild{}, fmt.Errorf("version %q must look like v1.0: %w", opts.Version, ErrInvalidInput)
	}
	stats, err := opts.Stats.Complete()
	if err != nil {
		return domain.DatasetBuild{}, fmt.Errorf("%v: %w", err, ErrStatsIncomplete)
	}
	if err := validateStats(stats); err != nil {
		return domain.DatasetBuild{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.timestamp()
	d := domain.DatasetBuild{
		ID:          id,
		Name:        opts.Name,
		DatasetType: opts.DatasetType,
		Version:     opts.Version,
		Status:      domain.StatusBuilding,
		Stats:       stats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	change := repo.Change{
		Type:       events.DatasetCreated,
		EntityKind: entityDataset,
		EntityID:   id,
		ActorID:    opts.ActorID,
		Payload:    events.EventPayload{"name": d.Name, "dataset_type": d.DatasetType, "version": d.Version},
	}
	if err := e.Store.InsertDataset(ctx, d, change); err != nil {
		return domain.DatasetBuild{}, err
	}
	e.log().Info("dataset created", zap.String("dataset_id", id), zap.String("dataset_type", d.DatasetType))
	return d, nil
}

func validateStats(s domain.DatasetStats) error {
	if math.IsNaN(s.TotalHours) || math.IsInf(s.TotalHours, 0) {
		return fmt.Errorf("total_hours must be a finite number: %w", ErrInvalidInput)
	}
	if s.TotalHours < 0 {
		return fmt.Errorf("total_hours must be non-negative: %w", ErrInvalidInput)
	}
	if s.ContributorCount < 0 {
		return fmt.Errorf("contributor_count must be non-negative: %w", ErrInvalidInput)
	}
	for name, v := range map[string]float64{
		"avg_qa_score":          s.AvgQAScore,
		"annotation_agreement":  s.AnnotationAgreement,
		"rejection_rate":        s.RejectionRate,
		"metadata_completeness": s.MetadataCompleteness,
	} {
		// NaN fails every comparison, so it is rejected explicitly.
		if math.IsNaN(v) || v < 0 || v > 100 {
			return fmt.Errorf("%s must be within 0..100: %w", name, ErrInvalidInput)
		}
	}
	return nil
}

func (e Engine) GetDataset(ctx context.Context, id string) (domain.DatasetBuild, error) {
	return e.Store.GetDataset(ctx, id)
}

func (e Engine) ListDatasets(ctx context.Context, f repo.DatasetFilters) ([]domain.DatasetBuild, error) {
	return e.Store.ListDatasets(ctx, f)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Store.LatestEvents(ctx, f)
}

// MarkReady moves a build from building to ready_for_certification.
func (e Engine) MarkReady(ctx context.Context, id, actorID string) (domain.DatasetBuild, error) {
	return e.transition(ctx, id, domain.StatusReadyForCertification, events.DatasetReady, actorID)
}

// Publish moves a certified build to published.
func (e Engine) Publish(ctx context.Context, id, actorID string) (domain.DatasetBuild, error) {
	return e.transition(ctx, id, domain.StatusPublished, events.DatasetPublished, actorID)
}

func (e Engine) transition(ctx context.Context, id, to, evtType, actorID string) (domain.DatasetBuild, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	d, err := e.Store.GetDataset(ctx, id)
	if err != nil {
		return domain.DatasetBuild{}, err
	}
	from := d.Status
	if err := ensureDatasetTransition(from, to); err != nil {
		return domain.DatasetBuild{}, err
	}
	d.Status = to
	d.UpdatedAt = e.timestamp()
	change := repo.Change{
		Type:       evtType,
		EntityKind: entityDataset,
		EntityID:   id,
		ActorID:    actorID,
		Payload:    events.EventPayload{"from": from, "to": to},
	}
	if err := e.Store.PutDataset(ctx, d, from, change); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.DatasetBuild{}, fmt.Errorf("dataset %s changed while moving to %s: %w", id, to, err)
		}
		return domain.DatasetBuild{}, err
	}
	e.log().Info("dataset status changed", zap.String("dataset_id", id), zap.String("from", from), zap.String("to", to))
	return d, nil
}

// ensureDatasetTransition only knows the transitions driven by the lifecycle
// commands. Certification is validated separately in Certify.
func ensureDatasetTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusBuilding:
		if newStatus == domain.StatusReadyForCertification {
			return nil
		}
	case domain.StatusCertified:
		if newStatus == domain.StatusPublished {
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", oldStatus, newStatus, ErrInvalidTransition)
}

// RecordStats replaces the stats snapshot of a build that has not been
// certified yet and advances its minor version.
func (e Engine) RecordStats(ctx context.Context, id string, in domain.StatsInput, actorID string) (domain.DatasetBuild, error) {
	stats, err := in.Complete()
	if err != nil {
		return domain.DatasetBuild{}, fmt.Errorf("%v: %w", err, ErrStatsIncomplete)
	}
	if err := validateStats(stats); err != nil {
		return domain.DatasetBuild{}, err
	}

	unlock := e.locks.lock(id)
	defer unlock()

	d, err := e.Store.GetDataset(ctx, id)
	if err != nil {
		return domain.DatasetBuild{}, err
	}
	if d.Status == domain.StatusCertified || d.Status == domain.StatusPublished {
		return domain.DatasetBuild{}, fmt.Errorf("stats of %s dataset are frozen: %w", d.Status, ErrInvalidTransition)
	}
	next, err := nextVersion(d.Version)
	if err != nil {
		return domain.DatasetBuild{}, err
	}
	prev := d.Version
	d.Stats = stats
	d.Version = next
	d.UpdatedAt = e.timestamp()
	change := repo.Change{
		Type:       events.DatasetStatsRecorded,
		EntityKind: entityDataset,
		EntityID:   id,
		ActorID:    actorID,
		Payload:    events.EventPayload{"from_version": prev, "version": next},
	}
	if err := e.Store.PutDataset(ctx, d, d.Status, change); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.DatasetBuild{}, fmt.Errorf("dataset %s changed while recording stats: %w", id, err)
		}
		return domain.DatasetBuild{}, err
	}
	return d, nil
}

func nextVersion(v string) (string, error) {
	m := versionPattern.FindStringSubmatch(v)
	if m == nil {
		return "", fmt.Errorf("unrecognized version %q", v)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("v%d.%d", major, minor+1), nil
}

// StatusCounts returns how many builds sit in each status.
func (e Engine) StatusCounts(ctx context.Context) (map[string]int, error) {
	items, err := e.Store.ListDatasets(ctx, repo.DatasetFilters{})
	if err != nil {
		return nil, err
	}
	counts := map[string]int{
		domain.StatusBuilding:              0,
		domain.StatusReadyForCertification: 0,
		domain.StatusCertified:             0,
		domain.StatusPublished:             0,
	}
	for _, d := range items {
		counts[d.Status]++
	}
	return counts, nil
}
