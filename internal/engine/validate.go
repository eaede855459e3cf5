package engine

import (
	"fmt"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

// Violation is one structural problem found in a template config.
type Violation struct {
	Kind    string `json:"kind"` // custom_format or group
	TrashID string `json:"trash_id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %q (%s): %s", v.Kind, v.Name, v.TrashID, v.Message)
}

// ValidateConfig checks the structural invariants every persisted config
// must hold. Callers refuse to persist on any violation.
func ValidateConfig(cfg models.TemplateConfig) []Violation {
	var violations []Violation

	for _, f := range cfg.CustomFormats {
		if f.TrashID == "" {
			violations = append(violations, Violation{Kind: "custom_format", Name: f.Name, Message: "missing trash id"})
		}
		if f.Name == "" {
			violations = append(violations, Violation{Kind: "custom_format", TrashID: f.TrashID, Message: "missing name"})
		}
		if f.Conditions == nil {
			violations = append(violations, Violation{Kind: "custom_format", TrashID: f.TrashID, Name: f.Name, Message: "missing condition map"})
		}
		if len(f.OriginalConfig) == 0 {
			violations = append(violations, Violation{Kind: "custom_format", TrashID: f.TrashID, Name: f.Name, Message: "missing original config"})
		}
	}

	for _, g := range cfg.Groups {
		if g.TrashID == "" {
			violations = append(violations, Violation{Kind: "group", Name: g.Name, Message: "missing trash id"})
		}
		if g.Name == "" {
			violations = append(violations, Violation{Kind: "group", TrashID: g.TrashID, Message: "missing name"})
		}
		if len(g.OriginalConfig) == 0 {
			violations = append(violations, Violation{Kind: "group", TrashID: g.TrashID, Name: g.Name, Message: "missing original config"})
		}
	}

	return violations
}
