package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/google/uuid"
)

type InstanceRepository struct {
	db *sql.DB
}

func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create creates a new instance
func (r *InstanceRepository) Create(in *models.Instance) error {
	in.ID = uuid.New().String()
	in.CreatedAt = time.Now()
	in.UpdatedAt = in.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO instances (id, user_id, label, service, base_url, api_key, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.UserID, in.Label, in.Service, in.BaseURL, in.APIKey, in.Enabled, in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetByID returns an instance by ID
func (r *InstanceRepository) GetByID(id string) (*models.Instance, error) {
	in := &models.Instance{}
	err := r.db.QueryRow(`
		SELECT id, user_id, label, service, base_url, api_key, enabled, created_at, updated_at
		FROM instances WHERE id = ?`, id,
	).Scan(&in.ID, &in.UserID, &in.Label, &in.Service, &in.BaseURL, &in.APIKey, &in.Enabled, &in.CreatedAt, &in.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}

// List returns instances with optional filtering
func (r *InstanceRepository) List(filter models.InstanceListFilter) ([]models.Instance, int, error) {
	countQuery := "SELECT COUNT(*) FROM instances WHERE 1=1"
	args := []any{}

	if filter.UserID != "" {
		countQuery += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Service != "" {
		countQuery += " AND service = ?"
		args = append(args, filter.Service)
	}

	var total int
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, label, service, base_url, api_key, enabled, created_at, updated_at
		FROM instances WHERE 1=1`

	args = []any{}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Service != "" {
		query += " AND service = ?"
		args = append(args, filter.Service)
	}

	query += " ORDER BY label"

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

	instances := []models.Instance{}
	for rows.Next() {
		var in models.Instance
		err := rows.Scan(&in.ID, &in.UserID, &in.Label, &in.Service, &in.BaseURL, &in.APIKey, &in.Enabled, &in.CreatedAt, &in.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		instances = append(instances, in)
	}

	return instances, total, rows.Err()
}

// Update updates an instance
func (r *InstanceRepository) Update(in *models.Instance) error {
	in.UpdatedAt = time.Now()
	_, err := r.db.Exec(`
		UPDATE instances SET label = ?, service = ?, base_url = ?, api_key = ?, enabled = ?, updated_at = ?
		WHERE id = ?`,
		in.Label, in.Service, in.BaseURL, in.APIKey, in.Enabled, in.UpdatedAt, in.ID,
	)
	return err
}

// Delete permanently deletes an instance
func (r *InstanceRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM instances WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("instance not found")
	}
	return nil
}
