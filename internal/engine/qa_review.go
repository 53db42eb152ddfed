package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"harbor/internal/domain"
	"harbor/internal/events"
	"harbor/internal/qa"
	"harbor/internal/repo"
)

// ErrAutoFailed means the asset never reached human review.
var ErrAutoFailed = errors.New("auto score below review threshold")

type QAReviewOptions struct {
	UploadID   string
	ReviewerID string
	Checks     qa.AutoCheck
	HumanScore float64
	// Action defaults to the band's natural action when empty.
	Action string
	Notes  string
}

// SubmitQAReview scores an upload, checks the reviewer action against the
// final band and records the review.
func (e Engine) SubmitQAReview(ctx context.Context, opts QAReviewOptions) (domain.QAReview, error) {
	if opts.UploadID == "" {
		return domain.QAReview{}, fmt.Errorf("upload id is required: %w", ErrInvalidInput)
	}
	if opts.ReviewerID == "" {
		return domain.QAReview{}, fmt.Errorf("reviewer id is required: %w", ErrInvalidInput)
	}
	human := opts.HumanScore
	summary, err := qa.Score(opts.Checks, &human)
	if err != nil {
		return domain.QAReview{}, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if summary.Classification == qa.AutoFail {
		return domain.QAReview{}, fmt.Errorf("auto score %v: %w", summary.AutoScore, ErrAutoFailed)
	}
	action := opts.Action
	if action == "" {
		action = qa.DefaultAction(summary.Band)
	}
	if !qa.ActionAllowed(summary.Band, action) {
		return domain.QAReview{}, fmt.Errorf("action %s not allowed for band %s: %w", action, summary.Band, ErrInvalidInput)
	}
	review := domain.QAReview{
		ID:               uuid.New().String(),
		UploadID:         opts.UploadID,
		ReviewerID:       opts.ReviewerID,
		AutoScore:        summary.AutoScore,
		HumanScore:       opts.HumanScore,
		FinalScore:       *summary.FinalScore,
		Band:             summary.Band,
		Action:           action,
		Notes:            opts.Notes,
		IncludeInDataset: action == qa.ActionApprove,
		CreatedAt:        e.timestamp(),
	}
	change := repo.Change{
		Type:       events.QAReviewed,
		EntityKind: "qa_review",
		EntityID:   review.ID,
		ActorID:    opts.ReviewerID,
		Payload: events.EventPayload{
			"upload_id":   review.UploadID,
			"final_score": review.FinalScore,
			"band":        review.Band,
			"action":      review.Action,
		},
	}
	if err := e.Store.InsertQAReview(ctx, review, change); err != nil {
		return domain.QAReview{}, err
	}
	e.log().Info("qa review recorded",
		zap.String("upload_id", review.UploadID),
		zap.Float64("final_score", review.FinalScore),
		zap.String("band", review.Band))
	return review, nil
}

func (e Engine) ListQAReviews(ctx context.Context, uploadID string) ([]domain.QAReview, error) {
	return e.Store.ListQAReviews(ctx, uploadID)
}
