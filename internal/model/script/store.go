package script

// Store exposes the dialogue scripts known to the process.
type Store interface {
	List() []Script
	FindByID(id string) (Script, bool)
	// Active returns the script the triage manager runs.
	Active() Script
}

// MemoryStore keeps scripts in a slice; the first one is active.
type MemoryStore struct {
	items []Script
}

// NewMemoryStore returns a store holding active followed by extras. Extras
// sharing an id with an earlier script are skipped.
func NewMemoryStore(active Script, extras ...Script) *MemoryStore {
	items := []Script{active}
	for _, extra := range extras {
		if !containsID(items, extra.ID) {
			items = append(items, extra)
		}
	}
	return &MemoryStore{items: items}
}

// List returns every registered script.
func (s *MemoryStore) List() []Script {
	return append([]Script(nil), s.items...)
}

// FindByID looks up a script by identifier.
func (s *MemoryStore) FindByID(id string) (Script, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Script{}, false
}

func (s *MemoryStore) Active() Script {
	return s.items[0]
}

func containsID(items []Script, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}
