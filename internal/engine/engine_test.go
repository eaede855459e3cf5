package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/db"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// fakeFetcher serves pre-registered snapshots and never talks to the
// network.
type fakeFetcher struct {
	latest     string
	snapshots  map[string]*trash.Snapshot
	resolveErr error
	fetchErr   error
	fetches    int
}

func snapKey(service models.Service, version string) string {
	return string(service) + "@" + version
}

func (f *fakeFetcher) ResolveVersion(ctx context.Context) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return f.latest, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, service models.Service, version string) (*trash.Snapshot, error) {
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	snap, ok := f.snapshots[snapKey(service, version)]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s@%s", service, version)
	}
	return snap, nil
}

func (f *fakeFetcher) add(snap *trash.Snapshot) {
	f.snapshots[snapKey(snap.Service, snap.Version)] = snap
}

// fakeArr is an in-memory Radarr/Sonarr stand-in implementing ArrClient.
type fakeArr struct {
	mu sync.Mutex

	formats  []arr.CustomFormat
	profiles []arr.QualityProfile
	schema   *arr.QualityProfile

	nextFormatID  int
	nextProfileID int

	listErr          error
	statusErr        error
	createFailNames  map[string]bool
	updateFailNames  map[string]bool
	updateProfileErr error
}

func newFakeArr() *fakeArr {
	return &fakeArr{
		schema:          testSchema(),
		nextFormatID:    1,
		nextProfileID:   1,
		createFailNames: map[string]bool{},
		updateFailNames: map[string]bool{},
	}
}

func testSchema() *arr.QualityProfile {
	quality := func(id int, name string) arr.ProfileItem {
		return arr.ProfileItem{Quality: &arr.Quality{ID: id, Name: name}, Items: []arr.ProfileItem{}}
	}
	return &arr.QualityProfile{
		Name: "Any",
		Items: []arr.ProfileItem{
			quality(2, "SDTV"),
			quality(4, "HDTV-720p"),
			quality(9, "HDTV-1080p"),
			quality(3, "WEBDL-1080p"),
			quality(7, "Bluray-1080p"),
			quality(30, "Remux-1080p"),
			quality(18, "WEBDL-2160p"),
			quality(19, "Bluray-2160p"),
			quality(31, "Remux-2160p"),
		},
		Language: &arr.Language{ID: 1, Name: "English"},
	}
}

func (a *fakeArr) SystemStatus(ctx context.Context) (*arr.SystemStatus, error) {
	if a.statusErr != nil {
		return nil, a.statusErr
	}
	return &arr.SystemStatus{AppName: "Radarr", Version: "5.14.0"}, nil
}

func (a *fakeArr) ListCustomFormats(ctx context.Context) ([]arr.CustomFormat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	out := make([]arr.CustomFormat, len(a.formats))
	copy(out, a.formats)
	return out, nil
}

func (a *fakeArr) CreateCustomFormat(ctx context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createFailNames[cf.Name] {
		return nil, fmt.Errorf("simulated create failure")
	}
	created := *cf
	created.ID = a.nextFormatID
	a.nextFormatID++
	a.formats = append(a.formats, created)
	return &created, nil
}

func (a *fakeArr) UpdateCustomFormat(ctx context.Context, cf *arr.CustomFormat) (*arr.CustomFormat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updateFailNames[cf.Name] {
		return nil, fmt.Errorf("simulated update failure")
	}
	for i := range a.formats {
		if a.formats[i].ID == cf.ID {
			a.formats[i] = *cf
			out := *cf
			return &out, nil
		}
	}
	return nil, fmt.Errorf("format %d not found", cf.ID)
}

func (a *fakeArr) ListQualityProfiles(ctx context.Context) ([]arr.QualityProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]arr.QualityProfile, len(a.profiles))
	copy(out, a.profiles)
	return out, nil
}

func (a *fakeArr) CreateQualityProfile(ctx context.Context, p *arr.QualityProfile) (*arr.QualityProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	created := *p
	created.ID = 100 + a.nextProfileID
	a.nextProfileID++
	a.profiles = append(a.profiles, created)
	return &created, nil
}

func (a *fakeArr) UpdateQualityProfile(ctx context.Context, p *arr.QualityProfile) (*arr.QualityProfile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.updateProfileErr != nil {
		return nil, a.updateProfileErr
	}
	for i := range a.profiles {
		if a.profiles[i].ID == p.ID {
			a.profiles[i] = *p
			out := *p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("profile %d not found", p.ID)
}

func (a *fakeArr) GetProfileSchema(ctx context.Context) (*arr.QualityProfile, error) {
	schema := *a.schema
	return &schema, nil
}

func (a *fakeArr) formatByName(name string) *arr.CustomFormat {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.formats {
		if a.formats[i].Name == name {
			cf := a.formats[i]
			return &cf
		}
	}
	return nil
}

func (a *fakeArr) profileByName(name string) *arr.QualityProfile {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.profiles {
		if a.profiles[i].Name == name {
			p := a.profiles[i]
			return &p
		}
	}
	return nil
}

// testEnv wires an engine against an in-memory database, a fake catalog
// fetcher and one fake remote instance.
type testEnv struct {
	engine    *Engine
	sqldb     *sql.DB
	users     *repository.UserRepository
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
	mappings  *repository.MappingRepository
	deploys   *repository.DeployRepository
	overrides *repository.OverrideRepository
	fetcher   *fakeFetcher
	remote    *fakeArr
	clientFor map[string]ArrClient // per-instance overrides, default remote
	metrics   *metrics.Metrics
	userID    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })
	// Every pool connection gets its own in-memory database; keep one.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := (&db.DB{DB: sqldb}).Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cache, err := trash.NewCache(filepath.Join(t.TempDir(), "trash.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	env := &testEnv{
		sqldb:     sqldb,
		users:     repository.NewUserRepository(sqldb),
		templates: repository.NewTemplateRepository(sqldb),
		instances: repository.NewInstanceRepository(sqldb),
		mappings:  repository.NewMappingRepository(sqldb),
		deploys:   repository.NewDeployRepository(sqldb),
		overrides: repository.NewOverrideRepository(sqldb),
		fetcher:   &fakeFetcher{snapshots: map[string]*trash.Snapshot{}},
		remote:    newFakeArr(),
		clientFor: map[string]ArrClient{},
		metrics:   metrics.New(),
	}

	env.engine = New(Deps{
		Templates:    env.templates,
		Instances:    env.instances,
		Mappings:     env.mappings,
		Deploys:      env.deploys,
		Overrides:    env.overrides,
		Cache:        cache,
		Fetcher:      env.fetcher,
		Clients: func(in *models.Instance) ArrClient {
			if c, ok := env.clientFor[in.ID]; ok {
				return c
			}
			return env.remote
		},
		Metrics:      env.metrics,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		QualityOrder: arr.OrderTopFirst,
		BackupTTL:    time.Hour,
	})

	user := &models.User{Name: "tester", PasswordHash: "x"}
	if err := env.users.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	env.userID = user.ID

	return env
}

func (env *testEnv) createTemplate(t *testing.T, name string, cfg models.TemplateConfig, version string) *models.Template {
	t.Helper()
	tpl := &models.Template{
		UserID:       env.userID,
		Name:         name,
		Service:      models.ServiceRadarr,
		TrashVersion: version,
	}
	if err := tpl.EncodeConfig(cfg); err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := env.templates.Create(tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func (env *testEnv) createInstance(t *testing.T, label string) *models.Instance {
	t.Helper()
	in := &models.Instance{
		UserID:  env.userID,
		Label:   label,
		Service: models.ServiceRadarr,
		BaseURL: "http://radarr.local:7878",
		APIKey:  "test-key",
		Enabled: true,
	}
	if err := env.instances.Create(in); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	return in
}

func (env *testEnv) reload(t *testing.T, id string) *models.Template {
	t.Helper()
	tpl, err := env.templates.GetByID(id)
	if err != nil {
		t.Fatalf("reload template: %v", err)
	}
	if tpl == nil {
		t.Fatalf("template %s vanished", id)
	}
	return tpl
}

func testSnapshot(version string, formats []trash.CustomFormat, groups []trash.FormatGroup, profiles []trash.QualityProfile) *trash.Snapshot {
	return &trash.Snapshot{
		Service:       models.ServiceRadarr,
		Version:       version,
		FetchedAt:     time.Now(),
		CustomFormats: formats,
		Groups:        groups,
		Profiles:      profiles,
	}
}
