package vacuum

import (
	"fmt"
	"sync"
)

// PropertyDefinition declares one remote field.
type PropertyDefinition struct {
	RawKey    string
	Name      string
	Transform Transform
}

// Option customizes a property definition.
type Option func(*PropertyDefinition)

// Named sets the public name. It defaults to the raw key.
func Named(name string) Option {
	return func(def *PropertyDefinition) {
		def.Name = name
	}
}

// Transformed sets the value transform. It defaults to identity.
func Transformed(t Transform) Option {
	return func(def *PropertyDefinition) {
		def.Transform = t
	}
}

// Schema is the set of declared properties of one device model, with the
// forward (raw to name) and reverse (name to raw) lookup tables.
type Schema struct {
	mu      sync.RWMutex
	order   []string
	byRaw   map[string]PropertyDefinition
	reverse map[string]string
}

func NewSchema() *Schema {
	return &Schema{
		byRaw:   make(map[string]PropertyDefinition),
		reverse: make(map[string]string),
	}
}

// Define registers rawKey. Redefining a raw key overwrites the prior
// definition and keeps its declaration position.
func (s *Schema) Define(rawKey string, opts ...Option) {
	def := PropertyDefinition{RawKey: rawKey, Name: rawKey}
	for _, opt := range opts {
		opt(&def)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byRaw[rawKey]; ok {
		delete(s.reverse, prev.Name)
	} else {
		s.order = append(s.order, rawKey)
	}
	if owner, ok := s.reverse[def.Name]; ok && owner != rawKey {
		// names are unique: the newer definition takes the name over
		s.removeLocked(owner)
	}
	s.byRaw[rawKey] = def
	s.reverse[def.Name] = rawKey
}

func (s *Schema) removeLocked(rawKey string) {
	delete(s.byRaw, rawKey)
	for i, key := range s.order {
		if key == rawKey {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ReverseLookup returns the raw key for a public name.
func (s *Schema) ReverseLookup(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.reverse[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return raw, nil
}

// Definition finds a property by public name or raw key.
func (s *Schema) Definition(name string) (PropertyDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if raw, ok := s.reverse[name]; ok {
		return s.byRaw[raw], true
	}
	def, ok := s.byRaw[name]
	return def, ok
}

// RawKeys translates public names to raw keys. Names that were never
// declared are passed through as raw keys.
func (s *Schema) RawKeys(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		raw, err := s.ReverseLookup(name)
		if err != nil {
			raw = name
		}
		out = append(out, raw)
	}
	return out
}

// Names returns every public name in declaration order.
func (s *Schema) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for _, raw := range s.order {
		out = append(out, s.byRaw[raw].Name)
	}
	return out
}

// Order sorts names into declaration order; undeclared names follow in
// the order given.
func (s *Schema) Order(names []string) []string {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}
	out := make([]string, 0, len(names))
	for _, name := range s.Names() {
		if want[name] {
			out = append(out, name)
			delete(want, name)
		}
	}
	for _, name := range names {
		if want[name] {
			out = append(out, name)
			delete(want, name)
		}
	}
	return out
}
