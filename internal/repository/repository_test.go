package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/db"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// setupTestDB creates an in-memory SQLite database with all migrations
// applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })
	// Every pool connection gets its own in-memory database; keep one.
	sqldb.SetMaxOpenConns(1)

	if _, err := sqldb.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := (&db.DB{DB: sqldb}).Migrate(); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	return sqldb
}

func seedUser(t *testing.T, sqldb *sql.DB) *models.User {
	t.Helper()
	u := &models.User{Name: "tester", PasswordHash: "x"}
	if err := NewUserRepository(sqldb).Create(u); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return u
}

func seedTemplate(t *testing.T, sqldb *sql.DB, userID, name string) *models.Template {
	t.Helper()
	tpl := &models.Template{
		UserID:  userID,
		Name:    name,
		Service: models.ServiceRadarr,
		Config:  "{}",
	}
	if err := NewTemplateRepository(sqldb).Create(tpl); err != nil {
		t.Fatalf("failed to seed template: %v", err)
	}
	return tpl
}

func seedInstance(t *testing.T, sqldb *sql.DB, userID, label string) *models.Instance {
	t.Helper()
	in := &models.Instance{
		UserID:  userID,
		Label:   label,
		Service: models.ServiceRadarr,
		BaseURL: "http://radarr.local:7878",
		APIKey:  "remote-key",
		Enabled: true,
	}
	if err := NewInstanceRepository(sqldb).Create(in); err != nil {
		t.Fatalf("failed to seed instance: %v", err)
	}
	return in
}

func TestStatsRepository_Stats(t *testing.T) {
	sqldb := setupTestDB(t)
	user := seedUser(t, sqldb)

	tpl := seedTemplate(t, sqldb, user.ID, "radarr-hd")
	deleted := seedTemplate(t, sqldb, user.ID, "radarr-old")
	if err := NewTemplateRepository(sqldb).SoftDelete(deleted.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	in := seedInstance(t, sqldb, user.ID, "main")
	if err := NewMappingRepository(sqldb).Upsert(&models.ProfileMapping{
		TemplateID:   tpl.ID,
		InstanceID:   in.ID,
		ProfileID:    3,
		ProfileName:  "HD Bluray + WEB",
		SyncStrategy: models.SyncManual,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	stats, err := NewStatsRepository(sqldb).Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.Instances != 1 {
		t.Errorf("Stats() Instances = %d, want 1", stats.Instances)
	}
	if stats.Templates != 1 {
		t.Errorf("Stats() Templates = %d, want 1 (soft-deleted rows do not count)", stats.Templates)
	}
	if stats.Mappings != 1 {
		t.Errorf("Stats() Mappings = %d, want 1", stats.Mappings)
	}
}
