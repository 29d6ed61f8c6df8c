package double

// Registry tracks the matchables registered against each port, in
// registration order.
//
// A Registry is not synchronized. One instance is meant to be operated
// by a single coordinating caller (the engine wraps its registry in its
// own lock), so callers that share an instance across goroutines must
// arrange that coordination themselves.
type Registry struct {
	entries map[int][]Matchable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int][]Matchable)}
}

// Register appends m to the port's sequence. Nothing is checked for
// uniqueness: the same id or pattern may appear any number of times,
// and later entries win lookups.
func (r *Registry) Register(m Matchable, port int) {
	r.entries[port] = append(r.entries[port], m)
}

// Unregister removes every entry with the given id from the port.
// Unknown ids and ports are a no-op.
func (r *Registry) Unregister(id string, port int) {
	seq, ok := r.entries[port]
	if !ok {
		return
	}
	kept := seq[:0]
	for _, m := range seq {
		if m.ID() != id {
			kept = append(kept, m)
		}
	}
	r.entries[port] = kept
}

// Reset clears the port's sequence. Other ports keep their entries.
func (r *Registry) Reset(port int) {
	delete(r.entries, port)
}

// FindForEndpoint returns the most recently registered entry matching
// endpoint on port, so later registrations override earlier ones.
func (r *Registry) FindForEndpoint(endpoint string, port int) (Matchable, bool) {
	seq := r.entries[port]
	for i := len(seq) - 1; i >= 0; i-- {
		if seq[i].Matches(endpoint) {
			return seq[i], true
		}
	}
	return nil, false
}

// FindAllForEndpoint returns every entry matching endpoint on port, in
// registration order. The result is empty, not nil, when nothing
// matches.
func (r *Registry) FindAllForEndpoint(endpoint string, port int) []Matchable {
	matches := make([]Matchable, 0)
	for _, m := range r.entries[port] {
		if m.Matches(endpoint) {
			matches = append(matches, m)
		}
	}
	return matches
}

// All returns the port's entries in registration order.
func (r *Registry) All(port int) []Matchable {
	seq := r.entries[port]
	out := make([]Matchable, len(seq))
	copy(out, seq)
	return out
}

// Len reports how many entries the port holds.
func (r *Registry) Len(port int) int {
	return len(r.entries[port])
}
