package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// ConflictChoice resolves a name collision with a remote format the
// engine does not manage.
type ConflictChoice string

const (
	// KeepExisting leaves the remote format definition untouched. The
	// template's score still applies to it.
	KeepExisting ConflictChoice = "keep_existing"
	// Overwrite replaces the remote definition with the template's.
	// This is also the behavior when no choice is given.
	Overwrite ConflictChoice = "overwrite"
)

// DeployOptions tunes one deployment.
type DeployOptions struct {
	// Resolutions maps trash ids to conflict choices.
	Resolutions map[string]ConflictChoice `json:"resolutions,omitempty"`
}

// DeployResult reports one deployment. Errors collects rule and profile
// failures; any entry downgrades the outcome to PARTIAL_SUCCESS.
type DeployResult struct {
	TemplateID  string              `json:"template_id"`
	InstanceID  string              `json:"instance_id"`
	HistoryID   string              `json:"history_id"`
	BackupID    string              `json:"backup_id"`
	Status      models.DeployStatus `json:"status"`
	Success     bool                `json:"success"`
	Created     int                 `json:"created"`
	Updated     int                 `json:"updated"`
	Skipped     int                 `json:"skipped"`
	ProfileID   int                 `json:"profile_id,omitempty"`
	ProfileName string              `json:"profile_name,omitempty"`
	Orphaned    []string            `json:"orphaned"`
	Errors      []string            `json:"errors"`
	Warnings    []string            `json:"warnings"`
}

// remoteRef identifies a custom format on the instance.
type remoteRef struct {
	id   int
	name string
}

// deployState carries one deployment's working set between pipeline
// steps.
type deployState struct {
	tpl      *models.Template
	instance *models.Instance
	cfg      models.TemplateConfig
	client   ArrClient

	existing []arr.CustomFormat
	byTrash  map[string]*arr.CustomFormat
	byName   map[string]*arr.CustomFormat

	overrides map[string]int
	deployed  map[string]remoteRef
	orphans   []remoteRef

	failedFormats int
	result        *DeployResult
}

func (st *deployState) buildIndex() {
	st.byTrash = make(map[string]*arr.CustomFormat, len(st.existing))
	st.byName = make(map[string]*arr.CustomFormat, len(st.existing))
	for i := range st.existing {
		cf := &st.existing[i]
		if id := cf.EmbeddedTrashID(); id != "" {
			st.byTrash[id] = cf
		}
		st.byName[strings.ToLower(cf.Name)] = cf
	}
}

// lookup resolves a template entry to a remote format, preferring the
// embedded identity marker over the case-insensitive name.
func (st *deployState) lookup(trashID, name string) *arr.CustomFormat {
	if cf, ok := st.byTrash[trashID]; ok {
		return cf
	}
	return st.byName[strings.ToLower(name)]
}

func (st *deployState) failFormat(name string, err error) {
	st.failedFormats++
	st.result.Skipped++
	st.result.Errors = append(st.result.Errors, fmt.Sprintf("format %q: %v", name, err))
}

func (st *deployState) warn(format string, args ...any) {
	st.result.Warnings = append(st.result.Warnings, fmt.Sprintf(format, args...))
}

// DeployOne deploys a template to one instance: custom formats first,
// then the quality profile, with a backup and a history record
// bracketing the run.
//
// The format listing doubles as the reachability probe and the backup
// payload; failing there leaves no records behind. Once the backup and
// the IN_PROGRESS history row exist, every exit path finalizes the
// record, panics included.
func (e *Engine) DeployOne(ctx context.Context, userID, templateID, instanceID string, opts DeployOptions) (result *DeployResult, err error) {
	tpl, err := e.getOwnedTemplate(userID, templateID)
	if err != nil {
		return nil, err
	}
	in, err := e.getOwnedInstance(userID, instanceID)
	if err != nil {
		return nil, err
	}
	if tpl.Service != in.Service {
		return nil, fmt.Errorf("%w: template targets %s, instance runs %s", ErrServiceMismatch, tpl.Service, in.Service)
	}

	cfg := e.decodeConfig(tpl)
	client := e.clients(in)

	existing, err := client.ListCustomFormats(ctx)
	if err != nil {
		e.metrics.IncDeployments("unreachable")
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, in.Label, err)
	}

	backupData, err := json.Marshal(existing)
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	backup := &models.Backup{InstanceID: in.ID, TemplateID: tpl.ID, Data: string(backupData)}
	if e.backupTTL > 0 {
		expires := timeNow().Add(e.backupTTL)
		backup.ExpiresAt = &expires
	}
	history := &models.DeployHistory{TemplateID: tpl.ID, InstanceID: in.ID, TemplateSnapshot: tpl.Config}
	if err := e.deploys.OpenDeployment(backup, history); err != nil {
		return nil, fmt.Errorf("%w: open deployment: %w", ErrDeployFailed, err)
	}

	result = &DeployResult{
		TemplateID: tpl.ID,
		InstanceID: in.ID,
		HistoryID:  history.ID,
		BackupID:   backup.ID,
		Orphaned:   []string{},
		Errors:     []string{},
		Warnings:   []string{},
	}
	st := &deployState{
		tpl:      tpl,
		instance: in,
		cfg:      cfg,
		client:   client,
		existing: existing,
		deployed: map[string]remoteRef{},
		result:   result,
	}
	st.overrides = e.instanceOverrides(in.ID, &result.Warnings)
	st.buildIndex()

	finalized := false
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic: %v", ErrDeployFailed, r)
		}
		if finalized {
			return
		}
		// An IN_PROGRESS row must never outlive its deployment.
		history.Status = models.DeployFailed
		if err != nil {
			history.Error = err.Error()
		}
		history.CreatedCount = st.result.Created
		history.UpdatedCount = st.result.Updated
		history.FailedCount = st.failedFormats
		if ferr := e.deploys.FinalizeHistory(history); ferr != nil {
			e.logger.Error("finalize deployment", "history_id", history.ID, "error", ferr)
		}
		e.metrics.IncDeployments(string(models.DeployFailed))
	}()

	sys, err := client.SystemStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, in.Label, err)
	}
	e.logger.Debug("deploying",
		"template_id", tpl.ID, "instance", in.Label, "app", sys.AppName, "app_version", sys.Version)

	e.deployFormats(ctx, st, opts)
	e.findOrphans(st)
	e.reconcileProfile(ctx, st)
	if result.ProfileID != 0 {
		e.upsertMapping(st)
		if n := len(st.orphans); n > 0 {
			e.metrics.AddOrphansNeutralized(n)
		}
	}

	history.Status = models.DeploySuccess
	if len(result.Errors) > 0 {
		history.Status = models.DeployPartialSuccess
	}
	history.CreatedCount = result.Created
	history.UpdatedCount = result.Updated
	history.FailedCount = st.failedFormats
	history.Error = strings.Join(result.Errors, "; ")
	if err := e.deploys.FinalizeHistory(history); err != nil {
		return nil, fmt.Errorf("%w: finalize history: %w", ErrDeployFailed, err)
	}
	finalized = true

	result.Status = history.Status
	result.Success = history.Status == models.DeploySuccess
	e.metrics.IncDeployments(string(history.Status))
	e.metrics.AddFormatsCreated(result.Created)
	e.metrics.AddFormatsUpdated(result.Updated)
	e.metrics.AddFormatsFailed(st.failedFormats)
	e.logger.Info("deployment finished",
		"template_id", tpl.ID, "instance", in.Label, "status", history.Status,
		"created", result.Created, "updated", result.Updated, "skipped", result.Skipped,
		"orphaned", len(result.Orphaned))

	return result, nil
}

// deployFormats creates or updates every template format on the
// instance. A failed rule is counted as skipped, recorded in the error
// list, and never aborts the remaining rules.
func (e *Engine) deployFormats(ctx context.Context, st *deployState, opts DeployOptions) {
	for _, f := range st.cfg.CustomFormats {
		found := st.lookup(f.TrashID, f.Name)

		if found != nil && opts.Resolutions[f.TrashID] == KeepExisting {
			st.result.Skipped++
			st.deployed[f.TrashID] = remoteRef{id: found.ID, name: found.Name}
			continue
		}

		payload, err := buildFormatPayload(f)
		if err != nil {
			st.failFormat(f.Name, err)
			continue
		}
		if len(payload.Specifications) == 1 {
			st.warn("format %q has no enabled conditions", f.Name)
		}

		if found == nil {
			created, err := st.client.CreateCustomFormat(ctx, payload)
			if err != nil {
				st.failFormat(f.Name, err)
				continue
			}
			st.result.Created++
			st.deployed[f.TrashID] = remoteRef{id: created.ID, name: created.Name}
			continue
		}

		payload.ID = found.ID
		updated, err := st.client.UpdateCustomFormat(ctx, payload)
		if err != nil {
			st.failFormat(f.Name, err)
			continue
		}
		st.result.Updated++
		st.deployed[f.TrashID] = remoteRef{id: updated.ID, name: updated.Name}
	}
}

// buildFormatPayload converts a stored template entry into the remote
// wire shape: enabled conditions only, fields as name/value pairs, plus
// the identity marker clause.
func buildFormatPayload(f models.TemplateFormat) (*arr.CustomFormat, error) {
	if len(f.OriginalConfig) == 0 {
		return nil, fmt.Errorf("no stored definition")
	}
	var def trash.CustomFormat
	if err := json.Unmarshal(f.OriginalConfig, &def); err != nil {
		return nil, fmt.Errorf("stored definition unreadable: %w", err)
	}

	cf := &arr.CustomFormat{
		Name:                f.Name,
		IncludeWhenRenaming: def.IncludeWhenRenaming,
		Specifications:      []arr.Specification{},
	}
	for _, spec := range def.Specifications {
		if enabled, ok := f.Conditions[spec.Name]; ok && !enabled {
			continue
		}
		cf.Specifications = append(cf.Specifications, arr.Specification{
			Name:           spec.Name,
			Implementation: spec.Implementation,
			Negate:         spec.Negate,
			Required:       spec.Required,
			Fields:         arr.FieldsToPairs(spec.Fields),
		})
	}
	cf.Specifications = append(cf.Specifications, arr.MarkerSpecification(f.TrashID))
	return cf, nil
}

// findOrphans compares the previous completed deployment's template
// snapshot against the current config. Formats that left the template
// but still exist remotely get their score zeroed during profile
// reconciliation; nothing is ever deleted from the instance.
func (e *Engine) findOrphans(st *deployState) {
	prior, err := e.deploys.LatestCompleted(st.tpl.ID, st.instance.ID)
	if err != nil {
		st.warn("deployment history unavailable, orphan check skipped: %v", err)
		return
	}
	if prior == nil || prior.TemplateSnapshot == "" {
		return
	}
	var prev models.TemplateConfig
	if err := json.Unmarshal([]byte(prior.TemplateSnapshot), &prev); err != nil {
		st.warn("prior deployment snapshot unreadable, orphan check skipped: %v", err)
		return
	}

	current := make(map[string]bool, len(st.cfg.CustomFormats))
	for _, f := range st.cfg.CustomFormats {
		current[f.TrashID] = true
	}
	seen := map[int]bool{}
	for _, pf := range prev.CustomFormats {
		if current[pf.TrashID] {
			continue
		}
		found := st.lookup(pf.TrashID, pf.Name)
		if found == nil || seen[found.ID] {
			continue
		}
		seen[found.ID] = true
		st.orphans = append(st.orphans, remoteRef{id: found.ID, name: found.Name})
		st.result.Orphaned = append(st.result.Orphaned, found.Name)
		st.warn("format %q left the template; score zeroed, format kept on instance", found.Name)
	}
}

// reconcileProfile locates the template's quality profile by name and
// updates its format scores, creating the profile from the template's
// source when the instance has none. Profile failures land in the error
// list next to rule failures.
func (e *Engine) reconcileProfile(ctx context.Context, st *deployState) {
	name := st.cfg.Profile.Name
	if name == "" {
		st.warn("template names no quality profile, skipping profile reconciliation")
		return
	}

	profiles, err := st.client.ListQualityProfiles(ctx)
	if err != nil {
		st.result.Errors = append(st.result.Errors, fmt.Sprintf("list quality profiles: %v", err))
		return
	}
	var current *arr.QualityProfile
	for i := range profiles {
		if strings.EqualFold(profiles[i].Name, name) {
			current = &profiles[i]
			break
		}
	}

	if current != nil {
		// Update path: only the format scores change. The quality
		// tree on the instance stays the operator's to manage.
		current.FormatItems = st.formatItems(current)
		updated, err := st.client.UpdateQualityProfile(ctx, current)
		if err != nil {
			st.result.Errors = append(st.result.Errors, fmt.Sprintf("update quality profile %q: %v", name, err))
			return
		}
		st.result.ProfileID = updated.ID
		st.result.ProfileName = updated.Name
		return
	}

	profile, err := e.buildProfile(ctx, st)
	if err != nil {
		st.result.Errors = append(st.result.Errors, fmt.Sprintf("build quality profile %q: %v", name, err))
		return
	}
	if profile == nil {
		st.warn("quality profile %q not on instance and template carries no creation source", name)
		return
	}
	profile.FormatItems = st.formatItems(nil)
	created, err := st.client.CreateQualityProfile(ctx, profile)
	if err != nil {
		st.result.Errors = append(st.result.Errors, fmt.Sprintf("create quality profile %q: %v", name, err))
		return
	}
	st.result.ProfileID = created.ID
	st.result.ProfileName = created.Name
}

// formatItems builds the complete score list for a profile write:
// template formats at their resolved scores, orphans zeroed, and every
// other remote format preserved (update) or zeroed (create). The API
// rejects profiles that omit a format it knows.
func (st *deployState) formatItems(current *arr.QualityProfile) []arr.FormatItem {
	items := []arr.FormatItem{}
	covered := map[int]bool{}

	for _, f := range st.cfg.CustomFormats {
		ref, ok := st.deployed[f.TrashID]
		if !ok || covered[ref.id] {
			continue
		}
		covered[ref.id] = true
		items = append(items, arr.FormatItem{Format: ref.id, Name: ref.name, Score: st.scoreFor(f)})
	}

	for _, o := range st.orphans {
		if covered[o.id] {
			continue
		}
		covered[o.id] = true
		items = append(items, arr.FormatItem{Format: o.id, Name: o.name, Score: 0})
	}

	if current != nil {
		for _, item := range current.FormatItems {
			if covered[item.Format] {
				continue
			}
			covered[item.Format] = true
			items = append(items, item)
		}
	}
	for i := range st.existing {
		cf := &st.existing[i]
		if covered[cf.ID] {
			continue
		}
		covered[cf.ID] = true
		items = append(items, arr.FormatItem{Format: cf.ID, Name: cf.Name, Score: 0})
	}

	return items
}

// scoreFor resolves the effective score of a template format for this
// instance.
func (st *deployState) scoreFor(f models.TemplateFormat) int {
	var instOverride *int
	if v, ok := st.overrides[f.TrashID]; ok {
		instOverride = &v
	}
	return ResolveScore(instOverride, f.ScoreOverride, st.cfg.Profile.ScoreSet, storedScoreTable(f.OriginalConfig))
}

// storedScoreTable reads the trash score table from a stored format
// snapshot, or nil when the snapshot is unreadable.
func storedScoreTable(stored json.RawMessage) map[string]int {
	var prev trash.CustomFormat
	if err := json.Unmarshal(stored, &prev); err != nil {
		return nil
	}
	return prev.TrashScores
}

// buildProfile constructs a new remote profile from the template's
// creation source: a catalog blueprint, a captured clone, or a custom
// item list, in that order of precedence. The source contributes the
// quality structure and a fallback cutoff; scalar settings come from
// the template itself. A nil profile with nil error means the template
// has no source to build from.
func (e *Engine) buildProfile(ctx context.Context, st *deployState) (*arr.QualityProfile, error) {
	p := st.cfg.Profile

	var (
		nodes          []arr.QualityNode
		used           map[int]bool
		fallbackCutoff string
		schema         *arr.QualityProfile
		err            error
	)
	switch {
	case p.TrashProfileID != "":
		nodes, used, fallbackCutoff, schema, err = e.blueprintNodes(ctx, st)
	case len(p.ClonedProfile) > 0:
		nodes, used, fallbackCutoff, schema, err = e.cloneNodes(ctx, st)
	case len(p.CustomItems) > 0:
		nodes, used, fallbackCutoff, schema, err = e.customNodes(ctx, st)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no usable qualities")
	}

	// Qualities the source never ranked still have to appear in the
	// wire tree; they go in front, disallowed, below everything ranked.
	nodes = append(leftoverNodes(schema, used), nodes...)
	items := arr.BuildItems(nodes)

	cutoffName := p.Cutoff
	if cutoffName == "" {
		cutoffName = fallbackCutoff
	}

	return &arr.QualityProfile{
		Name:              p.Name,
		UpgradeAllowed:    p.UpgradeAllowed,
		Cutoff:            resolveCutoff(items, cutoffName, &st.result.Warnings),
		Items:             items,
		MinFormatScore:    p.MinFormatScore,
		CutoffFormatScore: p.CutoffFormatScore,
		Language:          schema.Language,
	}, nil
}

// blueprintNodes builds the quality order from the catalog blueprint the
// template was created from, read at the template's synced version.
func (e *Engine) blueprintNodes(ctx context.Context, st *deployState) ([]arr.QualityNode, map[int]bool, string, *arr.QualityProfile, error) {
	if st.tpl.TrashVersion == "" {
		return nil, nil, "", nil, fmt.Errorf("template has never been synced, catalog blueprint unavailable")
	}
	snap, err := e.ensureSnapshot(ctx, st.tpl.Service, st.tpl.TrashVersion)
	if err != nil {
		return nil, nil, "", nil, err
	}
	bp := snap.ProfileByID(st.cfg.Profile.TrashProfileID)
	if bp == nil {
		return nil, nil, "", nil, fmt.Errorf("blueprint %s not in catalog %s", st.cfg.Profile.TrashProfileID, shortVersion(snap.Version))
	}
	schema, err := st.client.GetProfileSchema(ctx)
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("profile schema: %w", err)
	}
	index := arr.QualityIndex(schema)

	nodes := []arr.QualityNode{}
	used := map[int]bool{}
	for _, entry := range bp.Qualities {
		if node := resolveEntry(index, entry.Name, entry.Qualities, true, used, &st.result.Warnings); node != nil {
			nodes = append(nodes, node)
		}
	}

	return arr.ApplyOrder(nodes, e.qualityOrder), used, bp.Cutoff, schema, nil
}

// cloneNodes builds the quality order from a captured source profile.
// The clone keeps the source instance's quality ids, so every leaf is
// remapped by name onto this instance's definitions. Clone items are
// already in wire order.
func (e *Engine) cloneNodes(ctx context.Context, st *deployState) ([]arr.QualityNode, map[int]bool, string, *arr.QualityProfile, error) {
	var source arr.QualityProfile
	if err := json.Unmarshal(st.cfg.Profile.ClonedProfile, &source); err != nil {
		return nil, nil, "", nil, fmt.Errorf("cloned profile unreadable: %w", err)
	}
	schema, err := st.client.GetProfileSchema(ctx)
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("profile schema: %w", err)
	}
	index := arr.QualityIndex(schema)

	nodes := []arr.QualityNode{}
	used := map[int]bool{}
	for _, node := range arr.FlattenItems(source.Items) {
		switch n := node.(type) {
		case arr.IndividualQuality:
			if resolved := resolveEntry(index, n.Quality.Name, nil, n.Allowed, used, &st.result.Warnings); resolved != nil {
				nodes = append(nodes, resolved)
			}
		case arr.QualityGroup:
			names := make([]string, 0, len(n.Members))
			for _, member := range n.Members {
				names = append(names, member.Name)
			}
			if resolved := resolveEntry(index, n.Name, names, n.Allowed, used, &st.result.Warnings); resolved != nil {
				nodes = append(nodes, resolved)
			}
		}
	}

	return nodes, used, cutoffName(&source), schema, nil
}

// customNodes builds the quality order from the template's own item
// list, which is stored worst to best, already wire order.
func (e *Engine) customNodes(ctx context.Context, st *deployState) ([]arr.QualityNode, map[int]bool, string, *arr.QualityProfile, error) {
	schema, err := st.client.GetProfileSchema(ctx)
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("profile schema: %w", err)
	}
	index := arr.QualityIndex(schema)

	nodes := []arr.QualityNode{}
	used := map[int]bool{}
	for _, item := range st.cfg.Profile.CustomItems {
		if node := resolveEntry(index, item.Name, item.Qualities, item.Allowed, used, &st.result.Warnings); node != nil {
			nodes = append(nodes, node)
		}
	}

	return nodes, used, "", schema, nil
}

// resolveEntry resolves one named quality entry against the instance's
// definitions. Unknown names are dropped with a warning; a group whose
// members all drop resolves to nil.
func resolveEntry(index map[string]arr.Quality, name string, members []string, allowed bool, used map[int]bool, warnings *[]string) arr.QualityNode {
	if len(members) == 0 {
		q, ok := index[strings.ToLower(name)]
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("quality %q unknown to instance, dropped", name))
			return nil
		}
		used[q.ID] = true
		return arr.IndividualQuality{Quality: q, Allowed: allowed}
	}

	group := arr.QualityGroup{Name: name, Allowed: allowed}
	for _, member := range members {
		q, ok := index[strings.ToLower(member)]
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("quality %q unknown to instance, dropped", member))
			continue
		}
		used[q.ID] = true
		group.Members = append(group.Members, q)
	}
	if len(group.Members) == 0 {
		return nil
	}
	return group
}

// leftoverNodes returns the schema qualities the source never ranked,
// as individual disallowed entries in schema order.
func leftoverNodes(schema *arr.QualityProfile, used map[int]bool) []arr.QualityNode {
	leftovers := []arr.QualityNode{}
	for _, node := range arr.FlattenItems(schema.Items) {
		switch n := node.(type) {
		case arr.IndividualQuality:
			if !used[n.Quality.ID] {
				leftovers = append(leftovers, arr.IndividualQuality{Quality: n.Quality})
			}
		case arr.QualityGroup:
			for _, q := range n.Members {
				if !used[q.ID] {
					leftovers = append(leftovers, arr.IndividualQuality{Quality: q})
				}
			}
		}
	}
	return leftovers
}

// resolveCutoff maps a cutoff name onto the built item list, falling
// back to the highest allowed entry when the name resolves nowhere.
func resolveCutoff(items []arr.ProfileItem, name string, warnings *[]string) int {
	if name != "" {
		if id, ok := arr.CutoffID(items, name); ok {
			return id
		}
		*warnings = append(*warnings, fmt.Sprintf("cutoff %q not in quality list, using highest allowed entry", name))
	}
	id, _ := arr.HighestAllowedID(items)
	return id
}

// cutoffName returns the display name of a profile's cutoff entry.
func cutoffName(p *arr.QualityProfile) string {
	for _, item := range p.Items {
		if item.Quality != nil {
			if item.Quality.ID == p.Cutoff {
				return item.Quality.Name
			}
			continue
		}
		if item.ID == p.Cutoff {
			return item.Name
		}
	}
	return ""
}

// upsertMapping records which remote profile this template now manages
// on the instance. An existing mapping keeps its sync strategy.
func (e *Engine) upsertMapping(st *deployState) {
	strategy := models.SyncManual
	if prev, err := e.mappings.Get(st.tpl.ID, st.instance.ID); err != nil {
		e.logger.Warn("load profile mapping", "template_id", st.tpl.ID, "instance_id", st.instance.ID, "error", err)
	} else if prev != nil {
		strategy = prev.SyncStrategy
	}

	now := timeNow()
	m := &models.ProfileMapping{
		TemplateID:   st.tpl.ID,
		InstanceID:   st.instance.ID,
		ProfileID:    st.result.ProfileID,
		ProfileName:  st.result.ProfileName,
		SyncStrategy: strategy,
		LastSyncedAt: &now,
	}
	if err := e.mappings.Upsert(m); err != nil {
		st.result.Errors = append(st.result.Errors, fmt.Sprintf("record profile mapping: %v", err))
	}
}

// BulkItem is the outcome for one instance of a bulk deployment.
type BulkItem struct {
	InstanceID string        `json:"instance_id"`
	Result     *DeployResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BulkDeployResult aggregates a deployment fanned out to several
// instances. Items keeps the request order.
type BulkDeployResult struct {
	TemplateID string     `json:"template_id"`
	Succeeded  int        `json:"succeeded"`
	Partial    int        `json:"partial"`
	Failed     int        `json:"failed"`
	Items      []BulkItem `json:"items"`
}

// deployConcurrency bounds parallel instance deployments in a bulk run.
const deployConcurrency = 4

// DeployMany deploys one template to several instances concurrently.
// Every instance succeeds or fails on its own; the result always holds
// one item per requested instance.
func (e *Engine) DeployMany(ctx context.Context, userID, templateID string, instanceIDs []string, opts DeployOptions) *BulkDeployResult {
	items := make([]BulkItem, len(instanceIDs))
	var g errgroup.Group
	g.SetLimit(deployConcurrency)

	for i, instanceID := range instanceIDs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					items[i] = BulkItem{InstanceID: instanceID, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()

			res, err := e.DeployOne(ctx, userID, templateID, instanceID, opts)
			if err != nil {
				items[i] = BulkItem{InstanceID: instanceID, Error: err.Error()}
				return nil
			}
			items[i] = BulkItem{InstanceID: instanceID, Result: res}
			return nil
		})
	}
	g.Wait()

	bulk := &BulkDeployResult{TemplateID: templateID, Items: items}
	for _, item := range bulk.Items {
		switch {
		case item.Result == nil:
			bulk.Failed++
		case item.Result.Status == models.DeploySuccess:
			bulk.Succeeded++
		default:
			bulk.Partial++
		}
	}
	return bulk
}
