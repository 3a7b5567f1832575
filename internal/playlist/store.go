package playlist

// Store is the persistence abstraction for saved clips.
// Implementations can be in-memory or SQLite-backed; the Manager serialises
// writes so implementations need not be safe for concurrent Append.
type Store interface {
	// Append records a clip after all previously appended clips.
	Append(c Clip) error
	// Recent returns at most limit clips, oldest first. limit <= 0 returns all.
	Recent(limit int) ([]Clip, error)
	Count() (int, error)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	clips []Clip
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append implements Store.Append.
func (s *InMemoryStore) Append(c Clip) error {
	s.clips = append(s.clips, c)
	return nil
}

// Recent implements Store.Recent.
func (s *InMemoryStore) Recent(limit int) ([]Clip, error) {
	start := 0
	if limit > 0 && len(s.clips) > limit {
		start = len(s.clips) - limit
	}
	out := make([]Clip, len(s.clips)-start)
	copy(out, s.clips[start:])
	return out, nil
}

// Count implements Store.Count.
func (s *InMemoryStore) Count() (int, error) {
	return len(s.clips), nil
}
