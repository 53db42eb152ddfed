package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"harbor/internal/domain"
	"harbor/internal/events"
)

type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the stored record moved on since it was read.
	ErrConflict = errors.New("conflict")
)

// Change is the event recorded in the same transaction as a write.
type Change struct {
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    events.EventPayload
}

type scanner interface {
	Scan(dest ...any) error
}

const datasetColumns = `id,name,dataset_type,version,status,total_hours,contributor_count,avg_qa_score,annotation_agreement,rejection_rate,metadata_completeness,profile_type,profile_version,certified_at,qa_report_url,created_at,updated_at`

func scanDataset(row scanner) (domain.DatasetBuild, error) {
	var d domain.DatasetBuild
	var profileType, profileVersion, certifiedAt, reportURL sql.NullString
	err := row.Scan(&d.ID, &d.Name, &d.DatasetType, &d.Version, &d.Status,
		&d.Stats.TotalHours, &d.Stats.ContributorCount, &d.Stats.AvgQAScore, &d.Stats.AnnotationAgreement,
		&d.Stats.RejectionRate, &d.Stats.MetadataCompleteness,
		&profileType, &profileVersion, &certifiedAt, &reportURL, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if profileType.Valid {
		d.ProfileType = profileType.String
	}
	if profileVersion.Valid {
		d.ProfileVersion = profileVersion.String
	}
	if certifiedAt.Valid {
		d.CertifiedAt = &certifiedAt.String
	}
	if reportURL.Valid {
		d.QAReportURL = &reportURL.String
	}
	return d, nil
}

func (r Repo) GetDataset(ctx context.Context, id string) (domain.DatasetBuild, error) {
	return scanDataset(r.DB.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id=?`, id))
}

func (r Repo) InsertDataset(ctx context.Context, d domain.DatasetBuild, change Change) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `INSERT INTO datasets(`+datasetColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Name, d.DatasetType, d.Version, d.Status,
		d.Stats.TotalHours, d.Stats.ContributorCount, d.Stats.AvgQAScore, d.Stats.AnnotationAgreement,
		d.Stats.RejectionRate, d.Stats.MetadataCompleteness,
		nullable(d.ProfileType), nullable(d.ProfileVersion), nullableStringPtr(d.CertifiedAt), nullableStringPtr(d.QAReportURL), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("dataset %s already exists: %w", d.ID, ErrConflict)
		}
		return fmt.Errorf("insert dataset: %w", err)
	}
	if err := r.appendChange(ctx, tx, change); err != nil {
		return err
	}
	return tx.Commit()
}

// PutDataset replaces every mutable column of a dataset in one statement. The
// write only applies if the stored status still equals expectStatus; otherwise
// it returns ErrConflict and nothing is written.
func (r Repo) PutDataset(ctx context.Context, d domain.DatasetBuild, expectStatus string, change Change) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE datasets SET name=?, dataset_type=?, version=?, status=?,
total_hours=?, contributor_count=?, avg_qa_score=?, annotation_agreement=?, rejection_rate=?, metadata_completeness=?,
profile_type=?, profile_version=?, certified_at=?, qa_report_url=?, updated_at=?
WHERE id=? AND status=?`,
		d.Name, d.DatasetType, d.Version, d.Status,
		d.Stats.TotalHours, d.Stats.ContributorCount, d.Stats.AvgQAScore, d.Stats.AnnotationAgreement,
		d.Stats.RejectionRate, d.Stats.MetadataCompleteness,
		nullable(d.ProfileType), nullable(d.ProfileVersion), nullableStringPtr(d.CertifiedAt), nullableStringPtr(d.QAReportURL), d.UpdatedAt,
		d.ID, expectStatus)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM datasets WHERE id=?`, d.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	if err := r.appendChange(ctx, tx, change); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendEvent records an event without touching any other table.
func (r Repo) AppendEvent(ctx context.Context, change Change) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.appendChange(ctx, tx, change); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) appendChange(ctx context.Context, tx *sql.Tx, c Change) error {
	if c.Type == "" {
		return nil
	}
	return r.Events.Append(ctx, tx, c.Type, c.EntityKind, c.EntityID, c.ActorID, c.Payload)
}

type DatasetFilters struct {
	Status      string
	DatasetType string
	Limit       int
}

func (r Repo) ListDatasets(ctx context.Context, f DatasetFilters) ([]domain.DatasetBuild, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.DatasetType != "" {
		clauses = append(clauses, "dataset_type=?")
		args = append(args, f.DatasetType)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + datasetColumns + ` FROM datasets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DatasetBuild
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
