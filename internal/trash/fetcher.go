package trash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// Fetcher resolves catalog versions and retrieves snapshots.
type Fetcher interface {
	// ResolveVersion resolves the configured branch head to a commit hash.
	ResolveVersion(ctx context.Context) (string, error)
	// Fetch retrieves the full catalog for a service at an exact version.
	Fetch(ctx context.Context, service models.Service, version string) (*Snapshot, error)
}

const fetchConcurrency = 8

// GitHubFetcher reads the catalog from a GitHub repository laid out the
// TRaSH-Guides way: docs/json/<service>/{cf,cf-groups,quality-profiles}.
type GitHubFetcher struct {
	apiBase    string
	rawBase    string
	branch     string
	token      string
	httpClient *http.Client
}

// NewGitHubFetcher creates a fetcher for owner/repo@branch. Token is
// optional and only raises the API rate limit.
func NewGitHubFetcher(owner, repo, branch, token string) *GitHubFetcher {
	return &GitHubFetcher{
		apiBase: "https://api.github.com/repos/" + owner + "/" + repo,
		rawBase: "https://raw.githubusercontent.com/" + owner + "/" + repo,
		branch:  branch,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ResolveVersion resolves the branch head to its commit hash.
func (f *GitHubFetcher) ResolveVersion(ctx context.Context) (string, error) {
	var commit struct {
		SHA string `json:"sha"`
	}
	if err := f.getJSON(ctx, f.apiBase+"/commits/"+f.branch, &commit); err != nil {
		return "", fmt.Errorf("resolve catalog version: %w", err)
	}
	if commit.SHA == "" {
		return "", fmt.Errorf("resolve catalog version: empty commit hash")
	}
	return commit.SHA, nil
}

// Fetch retrieves every format, group and profile definition for a service
// at an exact commit and assembles a deterministic snapshot.
func (f *GitHubFetcher) Fetch(ctx context.Context, service models.Service, version string) (*Snapshot, error) {
	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := f.getJSON(ctx, f.apiBase+"/git/trees/"+version+"?recursive=1", &tree); err != nil {
		return nil, fmt.Errorf("fetch catalog tree: %w", err)
	}
	if tree.Truncated {
		return nil, fmt.Errorf("fetch catalog tree: listing truncated at %s", version)
	}

	base := "docs/json/" + string(service) + "/"
	var formatPaths, groupPaths, profilePaths []string
	for _, entry := range tree.Tree {
		if entry.Type != "blob" || !strings.HasSuffix(entry.Path, ".json") {
			continue
		}
		switch {
		case strings.HasPrefix(entry.Path, base+"cf/"):
			formatPaths = append(formatPaths, entry.Path)
		case strings.HasPrefix(entry.Path, base+"cf-groups/"):
			groupPaths = append(groupPaths, entry.Path)
		case strings.HasPrefix(entry.Path, base+"quality-profiles/"):
			profilePaths = append(profilePaths, entry.Path)
		}
	}

	snap := &Snapshot{
		Service:   service,
		Version:   version,
		FetchedAt: time.Now(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for _, path := range formatPaths {
		g.Go(func() error {
			var cf CustomFormat
			if err := f.getJSON(gctx, f.rawBase+"/"+version+"/"+path, &cf); err != nil {
				return fmt.Errorf("fetch %s: %w", path, err)
			}
			mu.Lock()
			snap.CustomFormats = append(snap.CustomFormats, cf)
			mu.Unlock()
			return nil
		})
	}
	for _, path := range groupPaths {
		g.Go(func() error {
			var grp FormatGroup
			if err := f.getJSON(gctx, f.rawBase+"/"+version+"/"+path, &grp); err != nil {
				return fmt.Errorf("fetch %s: %w", path, err)
			}
			mu.Lock()
			snap.Groups = append(snap.Groups, grp)
			mu.Unlock()
			return nil
		})
	}
	for _, path := range profilePaths {
		g.Go(func() error {
			var qp QualityProfile
			if err := f.getJSON(gctx, f.rawBase+"/"+version+"/"+path, &qp); err != nil {
				return fmt.Errorf("fetch %s: %w", path, err)
			}
			mu.Lock()
			snap.Profiles = append(snap.Profiles, qp)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stable ordering regardless of fetch completion order
	sort.Slice(snap.CustomFormats, func(i, j int) bool {
		return snap.CustomFormats[i].TrashID < snap.CustomFormats[j].TrashID
	})
	sort.Slice(snap.Groups, func(i, j int) bool {
		return snap.Groups[i].TrashID < snap.Groups[j].TrashID
	})
	sort.Slice(snap.Profiles, func(i, j int) bool {
		return snap.Profiles[i].TrashID < snap.Profiles[j].TrashID
	})

	return snap, nil
}

func (f *GitHubFetcher) getJSON(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
