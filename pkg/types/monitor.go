package types

// MonitorEntry is a single monitor declared in the configuration source.
type MonitorEntry struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// MonitorCollection keeps entries in declaration order.
type MonitorCollection []MonitorEntry

// IDs returns the identifiers in collection order.
func (c MonitorCollection) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, entry := range c {
		ids = append(ids, entry.ID)
	}
	return ids
}

// Duplicates returns every id declared more than once, in order of its
// second appearance.
func (c MonitorCollection) Duplicates() []string {
	seen := make(map[string]int, len(c))
	var dups []string
	for _, entry := range c {
		seen[entry.ID]++
		if seen[entry.ID] == 2 {
			dups = append(dups, entry.ID)
		}
	}
	return dups
}

// Contains reports whether id belongs to a monitor in the collection.
func (c MonitorCollection) Contains(id string) bool {
	for _, entry := range c {
		if entry.ID == id {
			return true
		}
	}
	return false
}
