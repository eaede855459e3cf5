package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// ArrClient is the slice of the remote API the engine drives.
// *arr.Client satisfies it.
type ArrClient interface {
	SystemStatus(ctx context.Context) (*arr.SystemStatus, error)
	ListCustomFormats(ctx context.Context) ([]arr.CustomFormat, error)
	CreateCustomFormat(ctx context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error)
	UpdateCustomFormat(ctx context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error)
	ListQualityProfiles(ctx context.Context) ([]arr.QualityProfile, error)
	CreateQualityProfile(ctx context.Context, p *arr.QualityProfile) (*arr.QualityProfile, error)
	UpdateQualityProfile(ctx context.Context, p *arr.QualityProfile) (*arr.QualityProfile, error)
	GetProfileSchema(ctx context.Context) (*arr.QualityProfile, error)
}

// ClientFactory builds a remote client for an instance.
type ClientFactory func(in *models.Instance) ArrClient

// DefaultClientFactory connects to the instance's real API.
func DefaultClientFactory(in *models.Instance) ArrClient {
	return arr.NewClient(in.BaseURL, in.APIKey)
}

// Deps carries everything the engine needs. All fields are required
// except Clients (defaults to DefaultClientFactory) and BackupTTL
// (defaults to keeping backups forever).
type Deps struct {
	Templates *repository.TemplateRepository
	Instances *repository.InstanceRepository
	Mappings  *repository.MappingRepository
	Deploys   *repository.DeployRepository
	Overrides *repository.OverrideRepository
	Cache     *trash.Cache
	Fetcher   trash.Fetcher
	Clients   ClientFactory
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	QualityOrder arr.QualityOrder
	BackupTTL    time.Duration
}

// Engine reconciles templates against the catalog and deploys them to
// remote instances.
type Engine struct {
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	mappings  *repository.MappingRepository
	deploys   *repository.DeployRepository
	overrides *repository.OverrideRepository
	cache     *trash.Cache
	fetcher   trash.Fetcher
	clients   ClientFactory
	metrics   *metrics.Metrics
	logger    *slog.Logger

	qualityOrder arr.QualityOrder
	backupTTL    time.Duration
}

// New creates an engine.
func New(deps Deps) *Engine {
	if deps.Clients == nil {
		deps.Clients = DefaultClientFactory
	}
	if deps.QualityOrder == "" {
		deps.QualityOrder = arr.OrderTopFirst
	}
	return &Engine{
		templates:    deps.Templates,
		instances:    deps.Instances,
		mappings:     deps.Mappings,
		deploys:      deps.Deploys,
		overrides:    deps.Overrides,
		cache:        deps.Cache,
		fetcher:      deps.Fetcher,
		clients:      deps.Clients,
		metrics:      deps.Metrics,
		logger:       deps.Logger.With("component", "engine"),
		qualityOrder: deps.QualityOrder,
		backupTTL:    deps.BackupTTL,
	}
}

// getOwnedTemplate loads a template and checks existence and ownership.
// Soft-deleted templates count as missing.
func (e *Engine) getOwnedTemplate(userID, templateID string) (*models.Template, error) {
	tpl, err := e.templates.GetByID(templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || tpl.DeletedAt != nil {
		return nil, fmt.Errorf("%w: template %s", ErrNotFound, templateID)
	}
	if tpl.UserID != userID {
		return nil, fmt.Errorf("%w: template %s", ErrNotAuthorized, templateID)
	}
	return tpl, nil
}

// getOwnedInstance loads an instance and checks existence and ownership.
func (e *Engine) getOwnedInstance(userID, instanceID string) (*models.Instance, error) {
	in, err := e.instances.GetByID(instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance: %w", err)
	}
	if in == nil {
		return nil, fmt.Errorf("%w: instance %s", ErrNotFound, instanceID)
	}
	if in.UserID != userID {
		return nil, fmt.Errorf("%w: instance %s", ErrNotAuthorized, instanceID)
	}
	return in, nil
}

// decodeConfig parses a template's config blob, substituting an empty
// config on corruption. A broken row must never block the engine.
func (e *Engine) decodeConfig(tpl *models.Template) models.TemplateConfig {
	cfg, err := tpl.DecodeConfig()
	if err != nil {
		e.logger.Warn("corrupt template config, using empty",
			"template_id", tpl.ID, "error", err)
		return models.TemplateConfig{}
	}
	return cfg
}

// decodeChangeLog parses a template's change log, substituting an empty
// log on corruption.
func (e *Engine) decodeChangeLog(tpl *models.Template) []models.ChangeLogEntry {
	entries, err := tpl.DecodeChangeLog()
	if err != nil {
		e.logger.Warn("corrupt template change log, using empty",
			"template_id", tpl.ID, "error", err)
		return nil
	}
	return entries
}

// instanceOverrides loads the per-instance score overrides, substituting
// an empty map on failure so one broken store cannot block a deployment.
func (e *Engine) instanceOverrides(instanceID string, warnings *[]string) map[string]int {
	overrides, err := e.overrides.GetForInstance(instanceID)
	if err != nil {
		e.logger.Warn("could not load score overrides", "instance_id", instanceID, "error", err)
		*warnings = append(*warnings, fmt.Sprintf("score overrides unavailable: %v", err))
		return map[string]int{}
	}
	return overrides
}

// ensureSnapshot returns the catalog snapshot for (service, version),
// from cache when the cached tag matches and fetched otherwise. It never
// returns a snapshot whose version differs from the requested one.
func (e *Engine) ensureSnapshot(ctx context.Context, service models.Service, version string) (*trash.Snapshot, error) {
	cached, err := e.cache.Get(service)
	if err != nil {
		e.logger.Warn("snapshot cache read failed", "service", service, "error", err)
	} else if cached != nil && cached.Version == version {
		e.metrics.IncCatalogFetches(string(service), "hit")
		return cached, nil
	}

	snap, err := e.fetcher.Fetch(ctx, service, version)
	if err != nil {
		e.metrics.IncCatalogFetches(string(service), "error")
		return nil, fmt.Errorf("fetch catalog %s@%s: %w", service, shortVersion(version), err)
	}
	e.metrics.IncCatalogFetches(string(service), "fetch")
	if snap.Version != version {
		return nil, fmt.Errorf("catalog snapshot is %s, want %s", shortVersion(snap.Version), shortVersion(version))
	}
	if err := e.cache.Set(snap); err != nil {
		e.logger.Warn("snapshot cache write failed", "service", service, "error", err)
	}
	return snap, nil
}

// SuggestedAddition is a catalog format reachable through an enabled
// group or the linked source profile but not yet adopted by the template.
type SuggestedAddition struct {
	TrashID          string `json:"trash_id"`
	Name             string `json:"name"`
	RecommendedScore int    `json:"recommended_score"`
	Source           string `json:"source"`
}

// suggestedAdditions walks the template's enabled groups and its linked
// source profile, collecting member formats the template has not adopted.
// First source wins on duplicates.
func suggestedAdditions(tpl *models.Template, cfg models.TemplateConfig, snap *trash.Snapshot) []SuggestedAddition {
	suggestions := groupAdditions(cfg, snap)

	if tpl.SourceProfileID == "" {
		return suggestions
	}
	profile := snap.ProfileByID(tpl.SourceProfileID)
	if profile == nil {
		return suggestions
	}

	adopted := make(map[string]bool, len(cfg.CustomFormats))
	for _, f := range cfg.CustomFormats {
		adopted[f.TrashID] = true
	}
	seen := make(map[string]bool, len(suggestions))
	for _, s := range suggestions {
		seen[s.TrashID] = true
	}

	for _, item := range profile.FormatItems {
		if adopted[item.TrashID] || seen[item.TrashID] {
			continue
		}
		def := snap.FormatByID(item.TrashID)
		if def == nil {
			continue
		}
		score, _ := def.Score(cfg.Profile.ScoreSet)
		seen[item.TrashID] = true
		suggestions = append(suggestions, SuggestedAddition{
			TrashID:          item.TrashID,
			Name:             def.Name,
			RecommendedScore: score,
			Source:           profile.Name,
		})
	}

	return suggestions
}

// latestSyncedAt returns the newest sync timestamp recorded in the change
// log, or the zero time.
func latestSyncedAt(entries []models.ChangeLogEntry) time.Time {
	var latest time.Time
	for _, entry := range entries {
		if entry.SyncedAt.After(latest) {
			latest = entry.SyncedAt
		}
	}
	return latest
}
