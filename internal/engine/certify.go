package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"harbor/internal/config"
	"harbor/internal/domain"
	"harbor/internal/events"
	"harbor/internal/repo"
)

// Messages returned in CertificationResult.Errors.
const (
	MsgNotFound           = "Dataset not found"
	MsgAlreadyCertified   = "Already certified"
	MsgMetadataIncomplete = "Metadata incomplete"
)

// Certify evaluates a build against the active profile for its type and, if
// every threshold holds, marks it certified. Not-found, already-certified and
// threshold violations come back as an unsuccessful result; only storage
// faults and profile lookup failures are returned as errors.
func (e Engine) Certify(ctx context.Context, id, actorID string) (domain.CertificationResult, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	d, err := e.Store.GetDataset(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return rejected(MsgNotFound), nil
	}
	if err != nil {
		return domain.CertificationResult{}, fmt.Errorf("load dataset %s: %w", id, err)
	}
	if isCertified(d.Status) {
		return rejected(MsgAlreadyCertified), nil
	}
	if e.Config == nil {
		return domain.CertificationResult{}, errors.New("config not loaded")
	}
	profile, err := e.Config.Profile(d.DatasetType)
	if err != nil {
		return domain.CertificationResult{}, err
	}
	logger := e.log().With(
		zap.String("dataset_id", id),
		zap.String("profile", profile.DatasetType+"@"+profile.Version),
	)

	if violations := Evaluate(d.Stats, profile.Thresholds); len(violations) > 0 {
		change := repo.Change{
			Type:       events.DatasetRejected,
			EntityKind: entityDataset,
			EntityID:   id,
			ActorID:    actorID,
			Payload: events.EventPayload{
				"version":         d.Version,
				"profile_type":    profile.DatasetType,
				"profile_version": profile.Version,
				"errors":          violations,
			},
		}
		if err := e.Store.AppendEvent(ctx, change); err != nil {
			// The build is unchanged, so the rejection still stands.
			logger.Error("record certification rejection", zap.Error(err))
		}
		logger.Warn("certification rejected", zap.Strings("errors", violations))
		return domain.CertificationResult{Success: false, Errors: violations}, nil
	}

	from := d.Status
	now := e.timestamp()
	reportURL := ReportURL(e.Config.ReportBasePath(), id)
	d.Status = domain.StatusCertified
	d.CertifiedAt = &now
	d.QAReportURL = &reportURL
	d.ProfileType = profile.DatasetType
	d.ProfileVersion = profile.Version
	d.UpdatedAt = now
	change := repo.Change{
		Type:       events.DatasetCertified,
		EntityKind: entityDataset,
		EntityID:   id,
		ActorID:    actorID,
		Payload: events.EventPayload{
			"version":         d.Version,
			"profile_type":    profile.DatasetType,
			"profile_version": profile.Version,
			"qa_report_url":   reportURL,
		},
	}
	if err := e.Store.PutDataset(ctx, d, from, change); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			// Lost a race with a writer outside this process.
			cur, gerr := e.Store.GetDataset(ctx, id)
			if gerr == nil && isCertified(cur.Status) {
				return rejected(MsgAlreadyCertified), nil
			}
		}
		return domain.CertificationResult{}, fmt.Errorf("persist certification of %s: %w", id, err)
	}
	logger.Info("dataset certified", zap.String("qa_report_url", reportURL))
	return domain.CertificationResult{Success: true, Errors: []string{}, Dataset: &d}, nil
}

func isCertified(status string) bool {
	return status == domain.StatusCertified || status == domain.StatusPublished
}

func rejected(msg string) domain.CertificationResult {
	return domain.CertificationResult{Success: false, Errors: []string{msg}}
}

// Evaluate checks every threshold and returns all violations in a fixed
// order. Values equal to a threshold pass.
func Evaluate(s domain.DatasetStats, t config.Thresholds) []string {
	errs := []string{}
	if s.TotalHours < t.MinHours {
		errs = append(errs, fmt.Sprintf("Insufficient hours: %s < %s", num(s.TotalHours), num(t.MinHours)))
	}
	if s.ContributorCount < t.MinContributors {
		errs = append(errs, fmt.Sprintf("Low diversity: %d < %d contributors", s.ContributorCount, t.MinContributors))
	}
	if s.AvgQAScore < t.MinQAScore {
		errs = append(errs, fmt.Sprintf("Low quality: Avg QA score %s%% < %s%%", num(s.AvgQAScore), num(t.MinQAScore)))
	}
	if s.AnnotationAgreement < t.MinAgreement {
		errs = append(errs, fmt.Sprintf("Low agreement: %s%% < %s%%", num(s.AnnotationAgreement), num(t.MinAgreement)))
	}
	if s.RejectionRate > t.MaxRejectionRate {
		errs = append(errs, fmt.Sprintf("High rejection rate: %s%% > %s%%", num(s.RejectionRate), num(t.MaxRejectionRate)))
	}
	if s.MetadataCompleteness < t.MinMetadata {
		errs = append(errs, MsgMetadataIncomplete)
	}
	return errs
}

// num prints the shortest decimal form, so 4 prints as "4" and 4.5 as "4.5".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReportURL derives the report reference for a dataset id.
func ReportURL(basePath, id string) string {
	return strings.TrimSuffix(basePath, "/") + "/qa_" + url.PathEscape(id) + ".pdf"
}
