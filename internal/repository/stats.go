package repository

import (
	"context"
	"database/sql"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/metrics"
)

// StatsRepository reports inventory counts for the metrics collector
type StatsRepository struct {
	db *sql.DB
}

func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Stats returns current counts of instances, active templates, and mappings
func (r *StatsRepository) Stats(ctx context.Context) (*metrics.Stats, error) {
	var s metrics.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM instances),
			(SELECT COUNT(*) FROM templates WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM profile_mappings)`,
	).Scan(&s.Instances, &s.Templates, &s.Mappings)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
