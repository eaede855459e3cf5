package repository

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/google/uuid"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create creates a new API key for a user and returns the full key
// (only shown once)
func (r *APIKeyRepository) Create(userID string) (*models.APIKeyCreateResult, error) {
	// Generate random key
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	key := "ak_" + hex.EncodeToString(keyBytes)

	// Hash the key for storage
	keyHash := HashKey(key)

	// Get prefix for display
	keyPrefix := key[:11] // "ak_" + first 8 chars

	apiKey := &models.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		CreatedAt: time.Now(),
		Active:    true,
	}

	_, err := r.db.Exec(`
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, created_at, active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		apiKey.ID, apiKey.UserID, apiKey.KeyHash, apiKey.KeyPrefix, apiKey.CreatedAt, 1,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return &models.APIKeyCreateResult{
		APIKey: *apiKey,
		Key:    key,
	}, nil
}

// GetByHash returns an API key by its hash (for authentication)
func (r *APIKeyRepository) GetByHash(keyHash string) (*models.APIKey, error) {
	k := &models.APIKey{}
	var lastUsedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, user_id, key_hash, key_prefix, created_at, last_used_at, active
		FROM api_keys WHERE key_hash = ?`, keyHash,
	).Scan(&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &lastUsedAt, &k.Active)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		k.LastUsedAt = &lastUsedAt.Time
	}

	return k, nil
}

// ListByUser returns all API keys belonging to a user
func (r *APIKeyRepository) ListByUser(userID string) ([]models.APIKey, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, key_hash, key_prefix, created_at, last_used_at, active
		FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		var lastUsedAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &lastUsedAt, &k.Active); err != nil {
			return nil, err
		}
		if lastUsedAt.Valid {
			k.LastUsedAt = &lastUsedAt.Time
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// UpdateLastUsed updates the last_used_at timestamp
func (r *APIKeyRepository) UpdateLastUsed(id string) error {
	_, err := r.db.Exec("UPDATE api_keys SET last_used_at = ? WHERE id = ?", time.Now(), id)
	return err
}

// Deactivate deactivates an API key
func (r *APIKeyRepository) Deactivate(id string) error {
	result, err := r.db.Exec("UPDATE api_keys SET active = 0 WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("API key not found")
	}
	return nil
}

// Delete permanently deletes an API key
func (r *APIKeyRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("API key not found")
	}
	return nil
}

// HashKey computes SHA256 hash of an API key
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
