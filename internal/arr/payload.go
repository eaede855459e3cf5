package arr

import (
	"sort"
	"strings"
)

// markerPrefix names the hidden specification that embeds a catalog
// identity into a deployed format. The clause is non-required and its
// pattern never fires on real release titles, so matching behavior is
// unaffected.
const markerPrefix = "[TrashID]:"

// FieldsToPairs converts an object-of-fields (catalog form) into the
// name/value pair list the remote API expects. Output is sorted by name
// so repeated conversions are identical.
func FieldsToPairs(fields map[string]any) []Field {
	pairs := make([]Field, 0, len(fields))
	for name, value := range fields {
		pairs = append(pairs, Field{Name: name, Value: value})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	return pairs
}

// PairsToFields converts a name/value pair list back into an object of
// fields. Later duplicates win.
func PairsToFields(pairs []Field) map[string]any {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		fields[p.Name] = p.Value
	}
	return fields
}

// MarkerSpecification builds the identity clause for a trash id.
func MarkerSpecification(trashID string) Specification {
	return Specification{
		Name:           markerPrefix + trashID,
		Implementation: "ReleaseTitleSpecification",
		Negate:         false,
		Required:       false,
		Fields:         []Field{{Name: "value", Value: "\\b" + trashID + "\\b"}},
	}
}

// EmbeddedTrashID returns the catalog identity embedded in a remote
// format's specifications, or "" when the format carries none.
func (cf *CustomFormat) EmbeddedTrashID() string {
	for _, spec := range cf.Specifications {
		if strings.HasPrefix(spec.Name, markerPrefix) {
			return strings.TrimPrefix(spec.Name, markerPrefix)
		}
	}
	return ""
}

// IsMarker reports whether a specification is an identity clause.
func (s *Specification) IsMarker() bool {
	return strings.HasPrefix(s.Name, markerPrefix)
}
