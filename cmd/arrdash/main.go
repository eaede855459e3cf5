package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/config"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/db"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/repository"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

var (
	cfgFile   string
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "arrdash",
	Short: "Arrdash - TRaSH guide template sync for Radarr and Sonarr",
	Long: `Arrdash keeps custom format and quality profile templates in sync with
the TRaSH guides catalog and deploys them to Radarr and Sonarr instances.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arrdash %s (built %s)\n", version, buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(serveCmd, migrateCmd, userCmd, syncCmd, deployCmd, updatesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// cliEnv bundles the storage handles and engine the data commands share.
type cliEnv struct {
	cfg       *config.Config
	database  *db.DB
	cache     *trash.Cache
	engine    *engine.Engine
	users     *repository.UserRepository
	templates *repository.TemplateRepository
	instances *repository.InstanceRepository
}

func openEnv() (*cliEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	cache, err := trash.NewCache(cfg.Trash.CachePath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open catalog cache: %w", err)
	}

	templates := repository.NewTemplateRepository(database.DB)
	instances := repository.NewInstanceRepository(database.DB)

	// Info-level engine chatter would drown command output; warnings
	// still land on stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	eng := engine.New(engine.Deps{
		Templates:    templates,
		Instances:    instances,
		Mappings:     repository.NewMappingRepository(database.DB),
		Deploys:      repository.NewDeployRepository(database.DB),
		Overrides:    repository.NewOverrideRepository(database.DB),
		Cache:        cache,
		Fetcher:      trash.NewGitHubFetcher(cfg.Trash.Owner, cfg.Trash.Repo, cfg.Trash.Branch, cfg.Trash.GitHubToken),
		Metrics:      metrics.New(),
		Logger:       logger,
		QualityOrder: arr.QualityOrder(cfg.Trash.QualityOrder),
		BackupTTL:    cfg.Backups.TTL,
	})

	return &cliEnv{
		cfg:       cfg,
		database:  database,
		cache:     cache,
		engine:    eng,
		users:     repository.NewUserRepository(database.DB),
		templates: templates,
		instances: instances,
	}, nil
}

func (env *cliEnv) Close() {
	env.cache.Close()
	env.database.Close()
}
