package universe

import (
	"errors"
	"fmt"

	"github.com/rkallos/timeloom/internal/event"
)

var (
	// ErrObjectExists indicates AddObject for an id already present.
	ErrObjectExists = errors.New("universe: object already exists")

	// ErrUnknownObject indicates a reference to an id never admitted.
	ErrUnknownObject = errors.New("universe: unknown object")

	// ErrNoContinuation indicates a successor computation that returned no
	// event for its own object. A non-destroyed event must always yield at
	// least a continuation (or an intentional destruction) for itself.
	ErrNoContinuation = errors.New("universe: successor computation yielded no event for its own object")
)

// IsObjectExists reports whether err is an ErrObjectExists violation.
func IsObjectExists(err error) bool {
	return errors.Is(err, ErrObjectExists)
}

// QuotaError reports an object that exceeded its per-run step quota. Quotas
// guard against runaway advancement (an object whose rule never destroys it
// and whose horizon is far away).
type QuotaError struct {
	Object event.ObjectID
	Steps  int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("universe: object %s exceeded step quota (%d steps)", e.Object, e.Steps)
}

// IsQuotaError reports whether err is a step-quota violation.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
