package arr

import "strings"

// QualityNode is one entry of a profile's quality order: either a single
// quality or a named group ranked as one tier. The closed set of variants
// is IndividualQuality and QualityGroup; convert to and from the wire
// item tree with FlattenItems/BuildItems.
type QualityNode interface {
	isQualityNode()
	NodeAllowed() bool
}

// IndividualQuality ranks one quality on its own.
type IndividualQuality struct {
	Quality Quality
	Allowed bool
}

func (IndividualQuality) isQualityNode() {}

func (n IndividualQuality) NodeAllowed() bool { return n.Allowed }

// QualityGroup ranks a set of qualities as a single tier.
type QualityGroup struct {
	ID      int // remote group id, 0 until assigned
	Name    string
	Members []Quality
	Allowed bool
}

func (QualityGroup) isQualityNode() {}

func (g QualityGroup) NodeAllowed() bool { return g.Allowed }

// FlattenItems converts a profile's wire item tree into quality nodes,
// preserving wire order (worst to best).
func FlattenItems(items []ProfileItem) []QualityNode {
	nodes := make([]QualityNode, 0, len(items))
	for _, item := range items {
		if item.Quality != nil {
			nodes = append(nodes, IndividualQuality{Quality: *item.Quality, Allowed: item.Allowed})
			continue
		}
		group := QualityGroup{ID: item.ID, Name: item.Name, Allowed: item.Allowed}
		for _, member := range item.Items {
			if member.Quality != nil {
				group.Members = append(group.Members, *member.Quality)
			}
		}
		nodes = append(nodes, group)
	}
	return nodes
}

// BuildItems converts quality nodes back into the wire item tree. Groups
// without an id get sequential ids above both 999 and any id already in
// use, the remote convention for user-defined groups. Leaves always carry
// an empty Items list; the API rejects null there.
func BuildItems(nodes []QualityNode) []ProfileItem {
	nextGroupID := 1000
	for _, node := range nodes {
		if g, ok := node.(QualityGroup); ok && g.ID >= nextGroupID {
			nextGroupID = g.ID + 1
		}
	}

	items := make([]ProfileItem, 0, len(nodes))
	for _, node := range nodes {
		switch n := node.(type) {
		case IndividualQuality:
			q := n.Quality
			items = append(items, ProfileItem{Quality: &q, Items: []ProfileItem{}, Allowed: n.Allowed})
		case QualityGroup:
			id := n.ID
			if id == 0 {
				id = nextGroupID
				nextGroupID++
			}
			group := ProfileItem{ID: id, Name: n.Name, Items: []ProfileItem{}, Allowed: n.Allowed}
			for _, member := range n.Members {
				q := member
				group.Items = append(group.Items, ProfileItem{Quality: &q, Items: []ProfileItem{}, Allowed: n.Allowed})
			}
			items = append(items, group)
		}
	}
	return items
}

// QualityOrder declares which end of a source quality list ranks best.
type QualityOrder string

const (
	// OrderTopFirst means source lists rank the best quality first and
	// must be reversed into wire order.
	OrderTopFirst QualityOrder = "top_first"
	// OrderBottomFirst means source lists already run worst to best.
	OrderBottomFirst QualityOrder = "bottom_first"
)

// ApplyOrder returns nodes in wire order for the given source polarity.
func ApplyOrder(nodes []QualityNode, order QualityOrder) []QualityNode {
	if order != OrderTopFirst {
		return nodes
	}
	out := make([]QualityNode, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

// CutoffID returns the wire id the cutoff field should carry for the
// named entry: the group id for groups, the quality id for individuals.
func CutoffID(items []ProfileItem, name string) (int, bool) {
	for _, item := range items {
		if item.Quality != nil {
			if strings.EqualFold(item.Quality.Name, name) {
				return item.Quality.ID, true
			}
			continue
		}
		if strings.EqualFold(item.Name, name) {
			return item.ID, true
		}
	}
	return 0, false
}

// HighestAllowedID returns the id of the best allowed entry, falling back
// to the very best entry when nothing is allowed.
func HighestAllowedID(items []ProfileItem) (int, bool) {
	if len(items) == 0 {
		return 0, false
	}
	itemID := func(item ProfileItem) int {
		if item.Quality != nil {
			return item.Quality.ID
		}
		return item.ID
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Allowed {
			return itemID(items[i]), true
		}
	}
	return itemID(items[len(items)-1]), true
}

// QualityIndex maps lower-cased quality names to the instance's own
// definitions, built from a profile schema.
func QualityIndex(schema *QualityProfile) map[string]Quality {
	index := map[string]Quality{}
	for _, item := range schema.Items {
		if item.Quality != nil {
			index[strings.ToLower(item.Quality.Name)] = *item.Quality
			continue
		}
		for _, member := range item.Items {
			if member.Quality != nil {
				index[strings.ToLower(member.Quality.Name)] = *member.Quality
			}
		}
	}
	return index
}
