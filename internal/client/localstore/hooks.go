package localstore

import (
	"context"
	"time"

	"github.com/avalactf/avala/pkg/log"
)

type beginKey struct{}

// Hooks satisfies sqlhooks.Hooks, logging every query the client issues
// against its local store at debug level.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("localstore query %s %q", query, args)
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok {
		log.Debugf("localstore query took %s", time.Since(begin))
	}
	return ctx, nil
}
