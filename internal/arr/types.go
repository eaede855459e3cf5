// Package arr talks to Radarr/Sonarr-family REST APIs and owns the wire
// shapes the deployment engine has to interpret: custom formats with
// name/value field lists and quality profiles with a nested item tree.
package arr

// CustomFormat is a format definition as the remote instance stores it.
type CustomFormat struct {
	ID                  int             `json:"id,omitempty"`
	Name                string          `json:"name"`
	IncludeWhenRenaming bool            `json:"includeCustomFormatWhenRenaming"`
	Specifications      []Specification `json:"specifications"`
}

// Specification is one matching clause on the wire. Unlike the catalog
// form, fields travel as a list of name/value pairs.
type Specification struct {
	Name           string  `json:"name"`
	Implementation string  `json:"implementation"`
	Negate         bool    `json:"negate"`
	Required       bool    `json:"required"`
	Fields         []Field `json:"fields"`
}

// Field is one name/value pair of a specification.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// QualityProfile is a profile as the remote instance stores it.
type QualityProfile struct {
	ID                int           `json:"id,omitempty"`
	Name              string        `json:"name"`
	UpgradeAllowed    bool          `json:"upgradeAllowed"`
	Cutoff            int           `json:"cutoff"` // id of a quality or group in Items
	Items             []ProfileItem `json:"items"`
	MinFormatScore    int           `json:"minFormatScore"`
	CutoffFormatScore int           `json:"cutoffFormatScore"`
	FormatItems       []FormatItem  `json:"formatItems"`
	Language          *Language     `json:"language,omitempty"`
}

// ProfileItem is one entry of a profile's quality list. A leaf carries
// Quality; a group carries ID/Name and nested leaf items. The list is
// ordered worst to best.
type ProfileItem struct {
	ID      int           `json:"id,omitempty"`
	Name    string        `json:"name,omitempty"`
	Quality *Quality      `json:"quality,omitempty"`
	Items   []ProfileItem `json:"items"`
	Allowed bool          `json:"allowed"`
}

// Quality is one quality definition on the instance.
type Quality struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Source     string `json:"source,omitempty"`
	Resolution int    `json:"resolution,omitempty"`
}

// FormatItem assigns a score to a custom format inside a profile.
type FormatItem struct {
	Format int    `json:"format"` // custom format id on the instance
	Name   string `json:"name"`
	Score  int    `json:"score"`
}

// Language is carried through unchanged when updating profiles.
type Language struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SystemStatus is the health-check response.
type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}

// FormatItemFor returns the profile's score entry for a format id, or nil.
func (p *QualityProfile) FormatItemFor(formatID int) *FormatItem {
	for i := range p.FormatItems {
		if p.FormatItems[i].Format == formatID {
			return &p.FormatItems[i]
		}
	}
	return nil
}
