package models

import (
	"encoding/json"
	"time"
)

// TemplateConfig is the deserialized form of Template.Config. It is stored
// as an opaque JSON blob; use DecodeConfig/EncodeConfig to cross the
// boundary.
type TemplateConfig struct {
	CustomFormats []TemplateFormat `json:"custom_formats"`
	Groups        []TemplateGroup  `json:"groups"`
	Profile       ProfileSettings  `json:"profile"`
}

// TemplateFormat is one custom-format entry inside a template. The
// OriginalConfig snapshot holds the catalog definition as last seen so the
// entry survives catalog removals and supports structural diffing.
type TemplateFormat struct {
	TrashID          string          `json:"trash_id"`
	Name             string          `json:"name"`
	ScoreOverride    *int            `json:"score_override,omitempty"` // nil = follow catalog
	Conditions       map[string]bool `json:"conditions"`               // specification name -> enabled
	OriginalConfig   json.RawMessage `json:"original_config"`
	Origin           Origin          `json:"origin"`
	AddedAt          time.Time       `json:"added_at"`
	Deprecated       bool            `json:"deprecated,omitempty"`
	DeprecatedAt     *time.Time      `json:"deprecated_at,omitempty"`
	DeprecatedReason string          `json:"deprecated_reason,omitempty"`
}

// TemplateGroup is a group entry inside a template. Enabled groups feed
// the suggested-additions list; member formats still require explicit
// adoption into CustomFormats.
type TemplateGroup struct {
	TrashID          string          `json:"trash_id"`
	Name             string          `json:"name"`
	Enabled          bool            `json:"enabled"`
	OriginalConfig   json.RawMessage `json:"original_config"`
	Origin           Origin          `json:"origin"`
	AddedAt          time.Time       `json:"added_at"`
	Deprecated       bool            `json:"deprecated,omitempty"`
	DeprecatedAt     *time.Time      `json:"deprecated_at,omitempty"`
	DeprecatedReason string          `json:"deprecated_reason,omitempty"`
}

// ProfileSettings describes the quality profile a deployment reconciles.
// Exactly one creation source is expected: a catalog blueprint id, a
// captured clone of a source profile, or a custom item list. When all are
// empty the deployer only manages format scores on an existing profile.
type ProfileSettings struct {
	Name              string              `json:"name"`
	ScoreSet          string              `json:"score_set,omitempty"`
	TrashProfileID    string              `json:"trash_profile_id,omitempty"`
	ClonedProfile     json.RawMessage     `json:"cloned_profile,omitempty"` // arr.QualityProfile as captured
	CustomItems       []CustomQualityItem `json:"custom_items,omitempty"`
	UpgradeAllowed    bool                `json:"upgrade_allowed"`
	Cutoff            string              `json:"cutoff,omitempty"` // quality or group name
	MinFormatScore    int                 `json:"min_format_score"`
	CutoffFormatScore int                 `json:"cutoff_format_score"`
}

// CustomQualityItem is one user-ordered entry of a custom profile item
// list. Qualities holds group members; empty means a single quality.
type CustomQualityItem struct {
	Name      string   `json:"name"`
	Allowed   bool     `json:"allowed"`
	Qualities []string `json:"qualities,omitempty"`
}

// DecodeConfig parses the template's config blob. An empty blob decodes to
// the zero value. Callers that must survive corrupt rows substitute the
// zero value on error and log a warning.
func (t *Template) DecodeConfig() (TemplateConfig, error) {
	if t.Config == "" {
		return TemplateConfig{}, nil
	}
	var cfg TemplateConfig
	if err := json.Unmarshal([]byte(t.Config), &cfg); err != nil {
		return TemplateConfig{}, err
	}
	return cfg, nil
}

// EncodeConfig serializes cfg into the template's config blob.
func (t *Template) EncodeConfig(cfg TemplateConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	t.Config = string(data)
	return nil
}

// FormatByID returns the entry with the given trash id, or nil.
func (c *TemplateConfig) FormatByID(trashID string) *TemplateFormat {
	for i := range c.CustomFormats {
		if c.CustomFormats[i].TrashID == trashID {
			return &c.CustomFormats[i]
		}
	}
	return nil
}

// GroupByID returns the group with the given trash id, or nil.
func (c *TemplateConfig) GroupByID(trashID string) *TemplateGroup {
	for i := range c.Groups {
		if c.Groups[i].TrashID == trashID {
			return &c.Groups[i]
		}
	}
	return nil
}
