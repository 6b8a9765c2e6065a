package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/storage"
)

// claim is the run that answers a start request.
type claim struct {
	run     model.Run
	site    model.Site
	created bool
}

// registry coalesces concurrent start requests for one idempotency key in
// this process. Only the caller whose function ran may execute the run;
// everyone else sharing the flight sees it as deduplicated. Cross-process
// duplicates are settled by the store's partial unique index.
type registry struct {
	group singleflight.Group
}

func newRegistry() *registry {
	return &registry{}
}

// claimTimeout bounds the shared lookup-or-create once it no longer follows
// the leader's request context.
const claimTimeout = 10 * time.Second

// claim runs fn once per key among concurrent callers. fn gets a context
// detached from the leader's request, so a leader that goes away does not
// cancel the lookup its followers are waiting on.
func (r *registry) claim(ctx context.Context, key string, fn func(context.Context) (claim, error)) (claim, error) {
	leader := false
	v, err, _ := r.group.Do(key, func() (any, error) {
		leader = true
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimTimeout)
		defer cancel()
		return fn(fctx)
	})
	if err != nil {
		return claim{}, err
	}
	c := v.(claim)
	if !leader {
		c.created = false
	}
	return c, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
