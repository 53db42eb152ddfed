package repo

import (
	"context"
	"database/sql"
	"errors"

	"harbor/internal/domain"
)

const qaReviewColumns = `id,upload_id,reviewer_id,auto_score,human_score,final_score,band,action,notes,include_in_dataset,created_at`

func (r Repo) InsertQAReview(ctx context.Context, q domain.QAReview, change Change) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO qa_reviews(`+qaReviewColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.UploadID, q.ReviewerID, q.AutoScore, q.HumanScore, q.FinalScore, q.Band, q.Action,
		nullable(q.Notes), q.IncludeInDataset, q.CreatedAt)
	if err != nil {
		return err
	}
	if err := r.appendChange(ctx, tx, change); err != nil {
		return err
	}
	return tx.Commit()
}

func scanQAReview(row scanner) (domain.QAReview, error) {
	var q domain.QAReview
	var notes sql.NullString
	err := row.Scan(&q.ID, &q.UploadID, &q.ReviewerID, &q.AutoScore, &q.HumanScore, &q.FinalScore,
		&q.Band, &q.Action, &notes, &q.IncludeInDataset, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	if notes.Valid {
		q.Notes = notes.String
	}
	return q, nil
}

func (r Repo) GetQAReview(ctx context.Context, id string) (domain.QAReview, error) {
	return scanQAReview(r.DB.QueryRowContext(ctx, `SELECT `+qaReviewColumns+` FROM qa_reviews WHERE id=?`, id))
}

// ListQAReviews returns reviews oldest first, optionally for one upload.
func (r Repo) ListQAReviews(ctx context.Context, uploadID string) ([]domain.QAReview, error) {
	query := `SELECT ` + qaReviewColumns + ` FROM qa_reviews`
	var args []any
	if uploadID != "" {
		query += ` WHERE upload_id=?`
		args = append(args, uploadID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QAReview
	for rows.Next() {
		q, err := scanQAReview(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}
