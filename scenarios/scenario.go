// Package scenarios defines test scenario descriptions and the catalogs that
// serve them. A scenario is the unit of execution on a device: an ordered set
// of steps driven by the device session.
package scenarios

import (
	"context"
	"errors"
	"fmt"
)

type Scenario struct {
	Id          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Steps       []string `json:"steps"`
	Tags        []string `json:"tags,omitempty"`
}

// Catalog serves scenario definitions by id. Implementations may be backed by
// memory, a remote scenario service, or a cache in front of either.
type Catalog interface {
	Scenario(ctx context.Context, id string) (Scenario, error)
	Has(ctx context.Context, id string) (bool, error)
	Scenarios(ctx context.Context) ([]Scenario, error)
}

type NotFoundError struct {
	Id string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scenario not found: %s", e.Id)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
