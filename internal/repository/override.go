package repository

import (
	"database/sql"
	"fmt"
	"time"
)

type OverrideRepository struct {
	db *sql.DB
}

func NewOverrideRepository(db *sql.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// Set pins a score for a format on one instance
func (r *OverrideRepository) Set(instanceID, trashID string, score int) error {
	_, err := r.db.Exec(`
		INSERT INTO score_overrides (instance_id, trash_id, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance_id, trash_id) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at`,
		instanceID, trashID, score, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set score override: %w", err)
	}
	return nil
}

// GetForInstance returns all overrides for an instance as trash_id -> score
func (r *OverrideRepository) GetForInstance(instanceID string) (map[string]int, error) {
	rows, err := r.db.Query("SELECT trash_id, score FROM score_overrides WHERE instance_id = ?", instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := map[string]int{}
	for rows.Next() {
		var trashID string
		var score int
		if err := rows.Scan(&trashID, &score); err != nil {
			return nil, err
		}
		overrides[trashID] = score
	}

	return overrides, rows.Err()
}

// Delete removes an override
func (r *OverrideRepository) Delete(instanceID, trashID string) error {
	result, err := r.db.Exec("DELETE FROM score_overrides WHERE instance_id = ? AND trash_id = ?",
		instanceID, trashID)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("override not found")
	}
	return nil
}
