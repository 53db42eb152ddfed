package migrate_test

import (
	"context"
	"testing"

	"harbor/internal/db"
	"harbor/internal/migrate"
)

func TestMigrateIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := migrate.Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh version = %d, %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	v, err := migrate.Version(ctx, conn)
	if err != nil || v != latest {
		t.Fatalf("version = %d, want %d (%v)", v, latest, err)
	}
}

func TestSchemaRejectsPartialCertification(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatal(err)
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO datasets(id,name,dataset_type,version,status,total_hours,contributor_count,avg_qa_score,annotation_agreement,rejection_rate,metadata_completeness,certified_at,created_at,updated_at)
VALUES ('ds-1','n','lego','v1.0','certified',1,1,1,1,1,1,'2024-01-01T00:00:00Z','2024-01-01T00:00:00Z','2024-01-01T00:00:00Z')`)
	if err == nil {
		t.Fatalf("expected check constraint to reject certified_at without qa_report_url")
	}
}
