package backbone

import "github.com/lojix/backbone/internal/entity"

// Entity is the base type embedded by mutable backbone domain objects.
type Entity = entity.Entity

// NewEntity returns an Entity with both timestamps set to the current UTC time.
func NewEntity() Entity {
	return entity.New()
}
