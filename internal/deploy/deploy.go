// Package deploy fans a config deploy out across every resolved target
// in parallel and collects one Response per target (SPEC_FULL.md §4.E,
// ported from struct/dispatch.py's concurrent_deploy).
//
// The original ran each target's deploy in its own OS process, a
// necessity of pygnmi's global client state and importlib-loaded
// transform modules. Here targets carry no shared mutable state and
// transforms are a static registry resolved at build time, so a bounded
// goroutine pool replaces the process pool without losing isolation
// that actually matters: one target's panic-free failure can't corrupt
// another's in-flight deploy.
package deploy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/doubleverify/ananke/internal/connector"
	"github.com/doubleverify/ananke/internal/model"
)

// DefaultConcurrency bounds how many targets deploy at once when the
// caller doesn't override it.
const DefaultConcurrency = 16

// Engine runs concurrent deploys across a fleet of targets.
type Engine struct {
	// Concurrency caps simultaneous in-flight deploys; <= 0 means
	// DefaultConcurrency.
	Concurrency int
}

// Deploy runs conn.SetConfig over every pack of every target, in
// parallel, and returns one Response per target keyed by target id. A
// per-target connector failure never aborts the rest of the fleet —
// connector.Deploy already folds transport errors into the Response's
// messages instead of returning them.
func (e *Engine) Deploy(ctx context.Context, targets []*model.Target, conns map[string]connector.Connector, writeMethod model.WriteMethod) map[string]*model.Response {
	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make(map[string]*model.Response, len(targets))
	resultsCh := make(chan *model.Response, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, target := range targets {
		target := target
		conn, ok := conns[target.ID]
		if !ok {
			continue
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			resultsCh <- connector.Deploy(conn, target, writeMethod)
			return nil
		})
	}
	_ = g.Wait()
	close(resultsCh)
	for resp := range resultsCh {
		results[resp.Source] = resp
	}
	return results
}
