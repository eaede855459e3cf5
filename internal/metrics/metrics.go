package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the reconciliation engine
type Metrics struct {
	// Sync counters
	SyncsTotal          *prometheus.CounterVec
	CatalogFetchesTotal *prometheus.CounterVec

	// Deployment counters
	DeploymentsTotal        *prometheus.CounterVec
	FormatsCreatedTotal     prometheus.Counter
	FormatsUpdatedTotal     prometheus.Counter
	FormatsFailedTotal      prometheus.Counter
	OrphansNeutralizedTotal prometheus.Counter

	// Inventory gauges
	TemplatesTracked    prometheus.Gauge
	TemplatesOutdated   prometheus.Gauge
	InstancesConfigured prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		// Sync counters
		SyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arrdash_syncs_total",
				Help: "Total number of template sync runs",
			},
			[]string{"status"},
		),
		CatalogFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arrdash_catalog_fetches_total",
				Help: "Total number of catalog snapshot lookups",
			},
			[]string{"service", "result"},
		),

		// Deployment counters
		DeploymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arrdash_deployments_total",
				Help: "Total number of template deployments",
			},
			[]string{"status"},
		),
		FormatsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arrdash_formats_created_total",
				Help: "Total number of custom formats created on instances",
			},
		),
		FormatsUpdatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arrdash_formats_updated_total",
				Help: "Total number of custom formats updated on instances",
			},
		),
		FormatsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arrdash_formats_failed_total",
				Help: "Total number of custom format pushes that failed",
			},
		),
		OrphansNeutralizedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arrdash_orphans_neutralized_total",
				Help: "Total number of previously deployed formats zeroed out after removal",
			},
		),

		// Inventory gauges
		TemplatesTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arrdash_templates_tracked",
				Help: "Number of active templates",
			},
		),
		TemplatesOutdated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arrdash_templates_outdated",
				Help: "Number of templates behind the latest catalog version",
			},
		),
		InstancesConfigured: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arrdash_instances_configured",
				Help: "Number of configured Radarr/Sonarr instances",
			},
		),

		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arrdash_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arrdash_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arrdash_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		// System metrics
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arrdash_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arrdash_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arrdash_storage_used_bytes",
				Help: "SQLite database file size in bytes",
			},
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.SyncsTotal,
		m.CatalogFetchesTotal,
		m.DeploymentsTotal,
		m.FormatsCreatedTotal,
		m.FormatsUpdatedTotal,
		m.FormatsFailedTotal,
		m.OrphansNeutralizedTotal,
		m.TemplatesTracked,
		m.TemplatesOutdated,
		m.InstancesConfigured,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recording helpers below tolerate a nil receiver so callers can
// run with metrics disabled.

// IncSyncs increments the sync counter for the given outcome
func (m *Metrics) IncSyncs(status string) {
	if m == nil {
		return
	}
	m.SyncsTotal.WithLabelValues(status).Inc()
}

// IncCatalogFetches increments the catalog lookup counter
func (m *Metrics) IncCatalogFetches(service, result string) {
	if m == nil {
		return
	}
	m.CatalogFetchesTotal.WithLabelValues(service, result).Inc()
}

// IncDeployments increments the deployment counter for the given outcome
func (m *Metrics) IncDeployments(status string) {
	if m == nil {
		return
	}
	m.DeploymentsTotal.WithLabelValues(status).Inc()
}

// AddFormatsCreated adds to the created format counter
func (m *Metrics) AddFormatsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FormatsCreatedTotal.Add(float64(n))
}

// AddFormatsUpdated adds to the updated format counter
func (m *Metrics) AddFormatsUpdated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FormatsUpdatedTotal.Add(float64(n))
}

// AddFormatsFailed adds to the failed format counter
func (m *Metrics) AddFormatsFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FormatsFailedTotal.Add(float64(n))
}

// AddOrphansNeutralized adds to the orphan neutralization counter
func (m *Metrics) AddOrphansNeutralized(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrphansNeutralizedTotal.Add(float64(n))
}

// SetTemplatesOutdated sets the outdated template gauge
func (m *Metrics) SetTemplatesOutdated(n int) {
	if m == nil {
		return
	}
	m.TemplatesOutdated.Set(float64(n))
}
