package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/google/uuid"
)

type DeployRepository struct {
	db *sql.DB
}

func NewDeployRepository(db *sql.DB) *DeployRepository {
	return &DeployRepository{db: db}
}

// OpenDeployment writes the pre-deployment backup and an IN_PROGRESS
// history record in one transaction. Either both exist afterwards or
// neither does.
func (r *DeployRepository) OpenDeployment(b *models.Backup, h *models.DeployHistory) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	b.ID = uuid.New().String()
	b.CreatedAt = now

	_, err = tx.Exec(`
		INSERT INTO backups (id, instance_id, template_id, data, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.InstanceID, b.TemplateID, b.Data, b.CreatedAt, b.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	h.ID = uuid.New().String()
	h.BackupID = &b.ID
	h.Status = models.DeployInProgress
	h.StartedAt = now

	_, err = tx.Exec(`
		INSERT INTO deploy_history (id, template_id, instance_id, backup_id, status, template_snapshot, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.TemplateID, h.InstanceID, h.BackupID, h.Status, h.TemplateSnapshot, h.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}

	return tx.Commit()
}

// FinalizeHistory closes a history record with its final status and counts
func (r *DeployRepository) FinalizeHistory(h *models.DeployHistory) error {
	now := time.Now()
	h.CompletedAt = &now

	_, err := r.db.Exec(`
		UPDATE deploy_history SET status = ?, created_count = ?, updated_count = ?, failed_count = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		h.Status, h.CreatedCount, h.UpdatedCount, h.FailedCount, h.Error, h.CompletedAt, h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize history: %w", err)
	}
	return nil
}

// GetHistory returns a history record by ID
func (r *DeployRepository) GetHistory(id string) (*models.DeployHistory, error) {
	h := &models.DeployHistory{}
	var backupID sql.NullString
	var snapshot, errMsg sql.NullString
	var completedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, template_id, instance_id, backup_id, status, created_count, updated_count, failed_count,
			template_snapshot, error, started_at, completed_at
		FROM deploy_history WHERE id = ?`, id,
	).Scan(&h.ID, &h.TemplateID, &h.InstanceID, &backupID, &h.Status, &h.CreatedCount, &h.UpdatedCount,
		&h.FailedCount, &snapshot, &errMsg, &h.StartedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if backupID.Valid {
		h.BackupID = &backupID.String
	}
	h.TemplateSnapshot = snapshot.String
	h.Error = errMsg.String
	if completedAt.Valid {
		h.CompletedAt = &completedAt.Time
	}
	return h, nil
}

// ListHistory returns history records with optional filtering, newest first
func (r *DeployRepository) ListHistory(filter models.HistoryListFilter) ([]models.DeployHistory, int, error) {
	where := " WHERE 1=1"
	args := []any{}

	if filter.TemplateID != "" {
		where += " AND template_id = ?"
		args = append(args, filter.TemplateID)
	}
	if filter.InstanceID != "" {
		where += " AND instance_id = ?"
		args = append(args, filter.InstanceID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM deploy_history"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, template_id, instance_id, backup_id, status, created_count, updated_count, failed_count,
			template_snapshot, error, started_at, completed_at
		FROM deploy_history` + where + " ORDER BY started_at DESC"

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

	records := []models.DeployHistory{}
	for rows.Next() {
		var h models.DeployHistory
		var backupID sql.NullString
		var snapshot, errMsg sql.NullString
		var completedAt sql.NullTime

		err := rows.Scan(&h.ID, &h.TemplateID, &h.InstanceID, &backupID, &h.Status, &h.CreatedCount,
			&h.UpdatedCount, &h.FailedCount, &snapshot, &errMsg, &h.StartedAt, &completedAt)
		if err != nil {
			return nil, 0, err
		}

		if backupID.Valid {
			h.BackupID = &backupID.String
		}
		h.TemplateSnapshot = snapshot.String
		h.Error = errMsg.String
		if completedAt.Valid {
			h.CompletedAt = &completedAt.Time
		}
		records = append(records, h)
	}

	return records, total, rows.Err()
}

// LatestCompleted returns the newest SUCCESS or PARTIAL_SUCCESS record for
// (template, instance), or nil. Its template snapshot drives orphan
// detection on the next deployment.
func (r *DeployRepository) LatestCompleted(templateID, instanceID string) (*models.DeployHistory, error) {
	h := &models.DeployHistory{}
	var backupID sql.NullString
	var snapshot, errMsg sql.NullString
	var completedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, template_id, instance_id, backup_id, status, created_count, updated_count, failed_count,
			template_snapshot, error, started_at, completed_at
		FROM deploy_history
		WHERE template_id = ? AND instance_id = ? AND status IN (?, ?)
		ORDER BY started_at DESC LIMIT 1`,
		templateID, instanceID, models.DeploySuccess, models.DeployPartialSuccess,
	).Scan(&h.ID, &h.TemplateID, &h.InstanceID, &backupID, &h.Status, &h.CreatedCount, &h.UpdatedCount,
		&h.FailedCount, &snapshot, &errMsg, &h.StartedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if backupID.Valid {
		h.BackupID = &backupID.String
	}
	h.TemplateSnapshot = snapshot.String
	h.Error = errMsg.String
	if completedAt.Valid {
		h.CompletedAt = &completedAt.Time
	}
	return h, nil
}

// GetBackup returns a backup by ID
func (r *DeployRepository) GetBackup(id string) (*models.Backup, error) {
	b := &models.Backup{}
	var expiresAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, instance_id, template_id, data, created_at, expires_at
		FROM backups WHERE id = ?`, id,
	).Scan(&b.ID, &b.InstanceID, &b.TemplateID, &b.Data, &b.CreatedAt, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		b.ExpiresAt = &expiresAt.Time
	}
	return b, nil
}

// DeleteExpiredBackups removes backups whose expiration has passed.
// History rows keep their NULLed backup reference.
func (r *DeployRepository) DeleteExpiredBackups(now time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM backups WHERE expires_at IS NOT NULL AND expires_at < ?", now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
