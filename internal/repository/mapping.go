package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/google/uuid"
)

type MappingRepository struct {
	db *sql.DB
}

func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Upsert creates or refreshes the mapping for (template, instance). The
// pair is unique; deployments call this on every success.
func (r *MappingRepository) Upsert(m *models.ProfileMapping) error {
	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.New().String()
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO profile_mappings (id, template_id, instance_id, profile_id, profile_name, sync_strategy, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(template_id, instance_id) DO UPDATE SET
			profile_id = excluded.profile_id,
			profile_name = excluded.profile_name,
			sync_strategy = excluded.sync_strategy,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at`,
		m.ID, m.TemplateID, m.InstanceID, m.ProfileID, m.ProfileName, m.SyncStrategy, m.LastSyncedAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}
	return nil
}

// Get returns the mapping for (template, instance), or nil
func (r *MappingRepository) Get(templateID, instanceID string) (*models.ProfileMapping, error) {
	m := &models.ProfileMapping{}
	var lastSyncedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, template_id, instance_id, profile_id, profile_name, sync_strategy, last_synced_at, created_at, updated_at
		FROM profile_mappings WHERE template_id = ? AND instance_id = ?`, templateID, instanceID,
	).Scan(&m.ID, &m.TemplateID, &m.InstanceID, &m.ProfileID, &m.ProfileName, &m.SyncStrategy, &lastSyncedAt, &m.CreatedAt, &m.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastSyncedAt.Valid {
		m.LastSyncedAt = &lastSyncedAt.Time
	}
	return m, nil
}

// ListByTemplate returns all mappings for a template
func (r *MappingRepository) ListByTemplate(templateID string) ([]models.ProfileMapping, error) {
	rows, err := r.db.Query(`
		SELECT id, template_id, instance_id, profile_id, profile_name, sync_strategy, last_synced_at, created_at, updated_at
		FROM profile_mappings WHERE template_id = ? ORDER BY created_at`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMappings(rows)
}

// ListByInstance returns all mappings for an instance
func (r *MappingRepository) ListByInstance(instanceID string) ([]models.ProfileMapping, error) {
	rows, err := r.db.Query(`
		SELECT id, template_id, instance_id, profile_id, profile_name, sync_strategy, last_synced_at, created_at, updated_at
		FROM profile_mappings WHERE instance_id = ? ORDER BY created_at`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMappings(rows)
}

func scanMappings(rows *sql.Rows) ([]models.ProfileMapping, error) {
	mappings := []models.ProfileMapping{}
	for rows.Next() {
		var m models.ProfileMapping
		var lastSyncedAt sql.NullTime
		err := rows.Scan(&m.ID, &m.TemplateID, &m.InstanceID, &m.ProfileID, &m.ProfileName, &m.SyncStrategy, &lastSyncedAt, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if lastSyncedAt.Valid {
			m.LastSyncedAt = &lastSyncedAt.Time
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// Delete removes a mapping (explicit unlink only; deployments never call
// this)
func (r *MappingRepository) Delete(templateID, instanceID string) error {
	result, err := r.db.Exec("DELETE FROM profile_mappings WHERE template_id = ? AND instance_id = ?",
		templateID, instanceID)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("mapping not found")
	}
	return nil
}
