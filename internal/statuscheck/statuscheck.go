package statuscheck

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/doubleverify/ananke/internal/logging"
)

// Kind classifies one telemetry Diff.
type Kind string

const (
	Added   Kind = "ADDED"
	Removed Kind = "REMOVED"
	Changed Kind = "CHANGED"
)

// Diff is one divergence between a path's initial reading and its
// latest poll.
type Diff struct {
	Path   string
	Kind   Kind
	Detail string
}

// CheckSubscriber owns one target's telemetry subscription: it snapshots
// the initial state at construction and diffs subsequent polls against
// it (ported from post_checks/telemetry.py's CheckSubscriber).
type CheckSubscriber struct {
	device       Device
	paths        []string
	initialState map[string]map[string]any
}

// New subscribes to paths on device and snapshots the initial state.
func New(ctx context.Context, device Device, paths []string) (*CheckSubscriber, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no check paths provided")
	}
	updates, err := device.Subscribe(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("subscribing for initial state: %w", err)
	}
	initial, err := populateState(updates, map[string]map[string]any{})
	if err != nil {
		return nil, err
	}
	return &CheckSubscriber{device: device, paths: paths, initialState: initial}, nil
}

// DiffFromInitial polls the device again and diffs the result against
// the snapshot taken at construction. tolerancePercent, when non-zero,
// allows numeric leaf values to drift by that percentage without being
// reported as changed.
func (c *CheckSubscriber) DiffFromInitial(ctx context.Context, tolerancePercent int) ([]Diff, error) {
	updates, err := c.device.Subscribe(ctx, c.paths)
	if err != nil {
		return nil, fmt.Errorf("polling for diff: %w", err)
	}
	polled, err := populateState(updates, map[string]map[string]any{})
	if err != nil {
		return nil, err
	}

	var diffs []Diff
	for path := range c.initialState {
		if _, ok := polled[path]; !ok {
			diffs = append(diffs, Diff{Path: path, Kind: Removed})
		}
	}
	for path, value := range polled {
		initial, ok := c.initialState[path]
		if !ok {
			diffs = append(diffs, Diff{Path: path, Kind: Added, Detail: fmt.Sprintf("%v", value)})
			continue
		}
		if detail := diffWithTolerance(initial, value, tolerancePercent); detail != "" {
			diffs = append(diffs, Diff{Path: path, Kind: Changed, Detail: detail})
		}
	}
	return diffs, nil
}

// diffWithTolerance returns a human-readable diff of a and b, treating
// numeric leaves within tolerancePercent of each other as equal.
func diffWithTolerance(a, b map[string]any, tolerancePercent int) string {
	tolerance := float64(tolerancePercent) / 100
	opt := cmp.Comparer(func(x, y float64) bool {
		if tolerancePercent == 0 {
			return x == y
		}
		if x == 0 {
			return y == 0
		}
		return math.Abs(x-y)/math.Abs(x) <= tolerance
	})
	return cmp.Diff(a, b, opt, cmp.Transformer("numeric", normalizeNumeric))
}

// normalizeNumeric coerces json.Unmarshal's float64 and any stray ints
// to float64 so the tolerance Comparer above always sees matching types.
func normalizeNumeric(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}

// StatusCheck fans a telemetry check out across a fleet of targets,
// ported from post_checks/telemetry.py's StatusCheck. Targets are keyed
// by their connector's target id.
type StatusCheck struct {
	subscribers map[string]*CheckSubscriber
}

// NewStatusCheck subscribes to every device concurrently and returns a
// fleet-wide checker once all subscriptions have snapshotted their
// initial state.
func NewStatusCheck(ctx context.Context, devices map[string]Device, paths []string) (*StatusCheck, error) {
	subscribers := make(map[string]*CheckSubscriber, len(devices))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for id, device := range devices {
		id, device := id, device
		g.Go(func() error {
			sub, err := New(gctx, device, paths)
			if err != nil {
				return fmt.Errorf("initializing check subscriber for %s: %w", id, err)
			}
			mu.Lock()
			subscribers[id] = sub
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &StatusCheck{subscribers: subscribers}, nil
}

// Poll diffs every target concurrently, returning a map of target id to
// its diffs. A single target's failure is logged and recorded as an
// empty result rather than aborting the rest of the fleet.
func (s *StatusCheck) Poll(ctx context.Context, tolerancePercent int) map[string][]Diff {
	results := make(map[string][]Diff, len(s.subscribers))
	var mu sync.Mutex
	var g errgroup.Group
	for id, sub := range s.subscribers {
		id, sub := id, sub
		g.Go(func() error {
			diffs, err := sub.DiffFromInitial(ctx, tolerancePercent)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if logging.Sugar != nil {
					logging.Sugar.Errorf("status check poll failed for %s: %v", id, err)
				}
				results[id] = nil
				return nil
			}
			results[id] = diffs
			return nil
		})
	}
	_ = g.Wait()
	return results
}
