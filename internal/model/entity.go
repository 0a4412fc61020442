package model

// NoAttributes is the attribute set of entities identified by name alone
type NoAttributes struct{}

// RoleAttributes holds the attributes compared when reconciling member roles
type RoleAttributes struct {
	Color int
}

// DesiredEntity is one named entity in the desired state
type DesiredEntity[A any] struct {
	Name       string
	Attributes A
}

// ObservedEntity is one remote resource as read during the current pass
type ObservedEntity[A any] struct {
	RemoteID   string
	Name       string
	Attributes A
	Position   int
}

// DesiredSet is a desired state keyed by name that remembers fetch order.
//
// Adding a name twice keeps the first occurrence's place in the order and the
// last occurrence's attributes.
type DesiredSet[A any] struct {
	order    []string
	entities map[string]DesiredEntity[A]
}

// NewDesiredSet creates an empty desired set
func NewDesiredSet[A any]() DesiredSet[A] {
	return DesiredSet[A]{entities: make(map[string]DesiredEntity[A])}
}

// Add inserts or replaces an entity
func (s *DesiredSet[A]) Add(entity DesiredEntity[A]) {
	if s.entities == nil {
		s.entities = make(map[string]DesiredEntity[A])
	}
	if _, exists := s.entities[entity.Name]; !exists {
		s.order = append(s.order, entity.Name)
	}
	s.entities[entity.Name] = entity
}

// Names returns entity names in fetch order
func (s DesiredSet[A]) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Map returns the entities keyed by name
func (s DesiredSet[A]) Map() map[string]DesiredEntity[A] {
	out := make(map[string]DesiredEntity[A], len(s.entities))
	for name, entity := range s.entities {
		out[name] = entity
	}
	return out
}

// Get looks up an entity by name
func (s DesiredSet[A]) Get(name string) (DesiredEntity[A], bool) {
	entity, ok := s.entities[name]
	return entity, ok
}

// Len returns the number of distinct names
func (s DesiredSet[A]) Len() int {
	return len(s.order)
}

// ObservedSet is the observed state keyed by name.
//
// Extras holds resources whose name was already taken by an earlier resource;
// they have no desired counterpart and are scheduled for deletion.
type ObservedSet[A any] struct {
	Entities map[string]ObservedEntity[A]
	Extras   []ObservedEntity[A]
}

// NewObservedSet indexes observed entities by name, first one wins
func NewObservedSet[A any](entities []ObservedEntity[A]) ObservedSet[A] {
	set := ObservedSet[A]{Entities: make(map[string]ObservedEntity[A], len(entities))}
	for _, entity := range entities {
		if _, exists := set.Entities[entity.Name]; exists {
			set.Extras = append(set.Extras, entity)
			continue
		}
		set.Entities[entity.Name] = entity
	}
	return set
}
