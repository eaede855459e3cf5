package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/google/uuid"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template
func (r *TemplateRepository) Create(t *models.Template) error {
	t.ID = uuid.New().String()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	if t.SyncStrategy == "" {
		t.SyncStrategy = models.SyncManual
	}

	_, err := r.db.Exec(`
		INSERT INTO templates (id, user_id, name, description, service, config, trash_version,
			has_user_modifications, sync_strategy, change_log, source_profile_id, source_profile_name,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Name, t.Description, t.Service, t.Config, t.TrashVersion,
		t.HasUserModifications, t.SyncStrategy, t.ChangeLog, t.SourceProfileID, t.SourceProfileName,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, including soft-deleted rows. Callers
// decide whether a non-nil DeletedAt counts as missing.
func (r *TemplateRepository) GetByID(id string) (*models.Template, error) {
	t := &models.Template{}
	var deletedAt sql.NullTime
	var description, config, trashVersion, changeLog, sourceProfileID, sourceProfileName sql.NullString

	err := r.db.QueryRow(`
		SELECT id, user_id, name, description, service, config, trash_version,
			has_user_modifications, sync_strategy, change_log, source_profile_id, source_profile_name,
			created_at, updated_at, deleted_at
		FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.UserID, &t.Name, &description, &t.Service, &config, &trashVersion,
		&t.HasUserModifications, &t.SyncStrategy, &changeLog, &sourceProfileID, &sourceProfileName,
		&t.CreatedAt, &t.UpdatedAt, &deletedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Config = config.String
	t.TrashVersion = trashVersion.String
	t.ChangeLog = changeLog.String
	t.SourceProfileID = sourceProfileID.String
	t.SourceProfileName = sourceProfileName.String
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}

	return t, nil
}

// List returns templates with optional filtering. Soft-deleted templates
// are excluded unless IncludeDeleted is set.
func (r *TemplateRepository) List(filter models.TemplateListFilter) ([]models.Template, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if !filter.IncludeDeleted {
		where += " AND deleted_at IS NULL"
	}
	if filter.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Service != "" {
		where += " AND service = ?"
		args = append(args, filter.Service)
	}
	if filter.Search != "" {
		where += " AND (name LIKE ? OR description LIKE ?)"
		args = append(args, "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM templates"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, name, description, service, config, trash_version,
			has_user_modifications, sync_strategy, change_log, source_profile_id, source_profile_name,
			created_at, updated_at, deleted_at
		FROM templates` + where + " ORDER BY name"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		var deletedAt sql.NullTime
		var description, config, trashVersion, changeLog, sourceProfileID, sourceProfileName sql.NullString

		err := rows.Scan(&t.ID, &t.UserID, &t.Name, &description, &t.Service, &config, &trashVersion,
			&t.HasUserModifications, &t.SyncStrategy, &changeLog, &sourceProfileID, &sourceProfileName,
			&t.CreatedAt, &t.UpdatedAt, &deletedAt)
		if err != nil {
			return nil, 0, err
		}

		t.Description = description.String
		t.Config = config.String
		t.TrashVersion = trashVersion.String
		t.ChangeLog = changeLog.String
		t.SourceProfileID = sourceProfileID.String
		t.SourceProfileName = sourceProfileName.String
		if deletedAt.Valid {
			t.DeletedAt = &deletedAt.Time
		}

		templates = append(templates, t)
	}

	return templates, total, rows.Err()
}

// Update updates a template's user-editable fields
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE templates SET name = ?, description = ?, config = ?, has_user_modifications = ?,
			sync_strategy = ?, source_profile_id = ?, source_profile_name = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, t.Config, t.HasUserModifications,
		t.SyncStrategy, t.SourceProfileID, t.SourceProfileName, t.UpdatedAt, t.ID,
	)
	return err
}

// SaveSyncResult persists a completed merge: config, change log and the
// new catalog version land in a single statement so readers never observe
// a half-applied sync.
func (r *TemplateRepository) SaveSyncResult(t *models.Template) error {
	t.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE templates SET config = ?, change_log = ?, trash_version = ?, has_user_modifications = 0, updated_at = ?
		WHERE id = ?`,
		t.Config, t.ChangeLog, t.TrashVersion, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync result: %w", err)
	}
	t.HasUserModifications = false
	return nil
}

// SetUserModified flags or clears the local-modifications marker
func (r *TemplateRepository) SetUserModified(id string, modified bool) error {
	_, err := r.db.Exec("UPDATE templates SET has_user_modifications = ?, updated_at = ? WHERE id = ?",
		modified, time.Now(), id)
	return err
}

// SoftDelete marks a template deleted without removing its rows
func (r *TemplateRepository) SoftDelete(id string) error {
	result, err := r.db.Exec("UPDATE templates SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now(), id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("template not found")
	}
	return nil
}

// Restore clears the soft-delete marker
func (r *TemplateRepository) Restore(id string) error {
	result, err := r.db.Exec("UPDATE templates SET deleted_at = NULL WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("template not found")
	}
	return nil
}
