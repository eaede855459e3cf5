package trash

import (
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// CustomFormat is one canonical format definition from the catalog.
type CustomFormat struct {
	TrashID             string          `json:"trash_id"`
	Name                string          `json:"name"`
	IncludeWhenRenaming bool            `json:"includeCustomFormatWhenRenaming"`
	TrashScores         map[string]int  `json:"trash_scores,omitempty"`
	Specifications      []Specification `json:"specifications"`
}

// Score returns the format's score for a score set, falling back to the
// catalog default. The second result reports whether either was present.
func (f *CustomFormat) Score(scoreSet string) (int, bool) {
	if f.TrashScores == nil {
		return 0, false
	}
	if scoreSet != "" {
		if s, ok := f.TrashScores[scoreSet]; ok {
			return s, true
		}
	}
	if s, ok := f.TrashScores["default"]; ok {
		return s, true
	}
	return 0, false
}

// Specification is one matching clause of a custom format. Field values
// are kept loosely typed; the catalog stores them as an object keyed by
// field name while the remote gets a name/value pair list.
type Specification struct {
	Name           string         `json:"name"`
	Implementation string         `json:"implementation"`
	Negate         bool           `json:"negate"`
	Required       bool           `json:"required"`
	Fields         map[string]any `json:"fields"`
}

// FormatGroup bundles formats that are adopted or suggested as a unit.
type FormatGroup struct {
	TrashID       string        `json:"trash_id"`
	Name          string        `json:"name"`
	Default       bool          `json:"default,omitempty"` // enabled by default when newly adopted
	CustomFormats []GroupMember `json:"custom_formats"`
}

// GroupMember references one format inside a group.
type GroupMember struct {
	TrashID  string `json:"trash_id"`
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// QualityProfile is the catalog's structural blueprint for a remote
// quality profile.
type QualityProfile struct {
	TrashID           string            `json:"trash_id"`
	Name              string            `json:"name"`
	TrashScoreSet     string            `json:"trash_score_set,omitempty"`
	UpgradeAllowed    bool              `json:"upgradeAllowed"`
	Cutoff            string            `json:"cutoff"`
	MinFormatScore    int               `json:"minFormatScore"`
	CutoffFormatScore int               `json:"cutoffFormatScore"`
	Qualities         []BlueprintItem   `json:"qualities"`
	FormatItems       []BlueprintFormat `json:"formatItems,omitempty"`
}

// BlueprintItem is one quality entry of a profile blueprint. Qualities
// holds group members; empty means a single quality.
type BlueprintItem struct {
	Name      string   `json:"name"`
	Qualities []string `json:"qualities,omitempty"`
}

// BlueprintFormat references a format the profile scores.
type BlueprintFormat struct {
	TrashID string `json:"trash_id"`
	Name    string `json:"name"`
}

// Snapshot is one fetched catalog state for one service, tagged with the
// upstream commit hash it was built from.
type Snapshot struct {
	Service       models.Service   `json:"service"`
	Version       string           `json:"version"`
	FetchedAt     time.Time        `json:"fetched_at"`
	CustomFormats []CustomFormat   `json:"custom_formats"`
	Groups        []FormatGroup    `json:"groups"`
	Profiles      []QualityProfile `json:"profiles"`
}

// FormatByID returns the format with the given trash id, or nil.
func (s *Snapshot) FormatByID(trashID string) *CustomFormat {
	for i := range s.CustomFormats {
		if s.CustomFormats[i].TrashID == trashID {
			return &s.CustomFormats[i]
		}
	}
	return nil
}

// GroupByID returns the group with the given trash id, or nil.
func (s *Snapshot) GroupByID(trashID string) *FormatGroup {
	for i := range s.Groups {
		if s.Groups[i].TrashID == trashID {
			return &s.Groups[i]
		}
	}
	return nil
}

// ProfileByID returns the profile blueprint with the given trash id, or nil.
func (s *Snapshot) ProfileByID(trashID string) *QualityProfile {
	for i := range s.Profiles {
		if s.Profiles[i].TrashID == trashID {
			return &s.Profiles[i]
		}
	}
	return nil
}
