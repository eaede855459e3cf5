package repository

import "testing"

func TestOverrideRepository_SetAndGet(t *testing.T) {
	sqldb := setupTestDB(t)
	user := seedUser(t, sqldb)
	in := seedInstance(t, sqldb, user.ID, "main")
	other := seedInstance(t, sqldb, user.ID, "backup-box")
	repo := NewOverrideRepository(sqldb)

	if err := repo.Set(in.ID, "cf-x265", -10000); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(in.ID, "cf-remux", 100); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(other.ID, "cf-x265", 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Pins replace in place
	if err := repo.Set(in.ID, "cf-remux", 120); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := repo.GetForInstance(in.ID)
	if err != nil {
		t.Fatalf("GetForInstance() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetForInstance() returned %d overrides, want 2", len(got))
	}
	if got["cf-x265"] != -10000 {
		t.Errorf("cf-x265 = %d, want -10000", got["cf-x265"])
	}
	if got["cf-remux"] != 120 {
		t.Errorf("cf-remux = %d, want 120 after replace", got["cf-remux"])
	}
}

func TestOverrideRepository_Delete(t *testing.T) {
	sqldb := setupTestDB(t)
	user := seedUser(t, sqldb)
	in := seedInstance(t, sqldb, user.ID, "main")
	repo := NewOverrideRepository(sqldb)

	if err := repo.Set(in.ID, "cf-x265", -10000); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Delete(in.ID, "cf-x265"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := repo.GetForInstance(in.ID)
	if err != nil {
		t.Fatalf("GetForInstance() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetForInstance() returned %d overrides, want 0", len(got))
	}

	if err := repo.Delete(in.ID, "cf-x265"); err == nil {
		t.Error("Delete() of a missing override should fail")
	}
}
