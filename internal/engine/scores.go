package engine

// ResolveScore computes the effective score for one format. Priority,
// highest first: instance-level override, template-level override, the
// score-set entry from the catalog score map, the catalog "default"
// entry, zero. It always resolves to a value.
func ResolveScore(instanceOverride, templateOverride *int, scoreSet string, trashScores map[string]int) int {
	if instanceOverride != nil {
		return *instanceOverride
	}
	if templateOverride != nil {
		return *templateOverride
	}
	if trashScores != nil {
		if scoreSet != "" {
			if score, ok := trashScores[scoreSet]; ok {
				return score
			}
		}
		if score, ok := trashScores["default"]; ok {
			return score
		}
	}
	return 0
}
