package scenarios

import (
	"context"
	"sync"
)

// StaticCatalog serves scenarios from memory. It is the source of truth when
// the farm is configured from a file, and the test double everywhere else.
type StaticCatalog struct {
	mu        sync.Mutex
	scenarios map[string]Scenario
	order     []string
}

func NewStaticCatalog(scs ...Scenario) *StaticCatalog {
	c := &StaticCatalog{scenarios: make(map[string]Scenario)}
	for _, sc := range scs {
		c.Register(sc)
	}
	return c
}

// Register adds or replaces a scenario definition.
func (c *StaticCatalog) Register(sc Scenario) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scenarios[sc.Id]; !ok {
		c.order = append(c.order, sc.Id)
	}
	c.scenarios[sc.Id] = sc
}

func (c *StaticCatalog) Scenario(ctx context.Context, id string) (Scenario, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.scenarios[id]
	if !ok {
		return Scenario{}, &NotFoundError{Id: id}
	}
	return sc, nil
}

func (c *StaticCatalog) Has(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.scenarios[id]
	return ok, nil
}

// Scenarios lists definitions in registration order.
func (c *StaticCatalog) Scenarios(ctx context.Context) ([]Scenario, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	scs := make([]Scenario, 0, len(c.order))
	for _, id := range c.order {
		scs = append(scs, c.scenarios[id])
	}
	return scs, nil
}
