package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Sumatoshi-tech/exceptrace/pkg/mapx"
)

// Propagator runs the worklist fixed point that grows every function's throw
// set across caller edges, filtering each delivery through the call site's
// catch set. Throw sets grow monotonically inside the bounded universe of
// extracted exception types, so the loop terminates.
type Propagator struct {
	graph *Graph
	log   *slog.Logger

	// Iterations counts worklist pops, including skipped revisits.
	Iterations int
}

// NewPropagator creates a propagator over g.
func NewPropagator(g *Graph, log *slog.Logger) *Propagator {
	if log == nil {
		log = slog.Default()
	}

	return &Propagator{graph: g, log: log}
}

// Run drives the fixed point to completion, then reconciles virtual
// expansion origins. The context is checked on each dequeue; cancellation is
// the only error path.
func (p *Propagator) Run(ctx context.Context) error {
	// LIFO worklist, seeded in sorted USR order so runs are reproducible.
	var stack []*Function

	for _, usr := range mapx.SortedKeys(p.graph.Functions) {
		fn := p.graph.Functions[usr]
		if len(fn.Throw) > 0 {
			stack = append(stack, fn)
		}
	}

	visited := make(map[string]ExSet, len(stack))

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("propagation interrupted: %w", err)
		}

		callee := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p.Iterations++

		if snapshot, ok := visited[callee.USR]; ok && snapshot.Equal(callee.Throw) {
			continue
		}

		visited[callee.USR] = callee.Throw.Clone()

		for _, callerUSR := range callee.Callers.Sorted() {
			caller := p.graph.Functions[callerUSR]

			escaped := NewExSet()

			for _, cs := range caller.CallSites {
				if cs.CalleeUSR != callee.USR {
					continue
				}

				escaped.Union(Filter(callee.Throw, cs.Catch))
			}

			if caller.Throw.ContainsAll(escaped) {
				continue
			}

			caller.Throw.Union(escaped)
			stack = append(stack, caller)
		}
	}

	p.reconcileExpansion()

	p.log.Debug("propagation complete", "iterations", p.Iterations)

	return nil
}

// reconcileExpansion copies overrider throw sets back onto the declared
// virtual base: for every synthetic call site the worklist delivered new
// exceptions only to the concrete override, while the base method's own
// throw set must reflect them too.
func (p *Propagator) reconcileExpansion() {
	for _, usr := range mapx.SortedKeys(p.graph.Functions) {
		for _, cs := range p.graph.Functions[usr].CallSites {
			if !cs.Synthetic() {
				continue
			}

			origin := p.graph.Functions[cs.ExpandOrigin]
			derived := p.graph.Functions[cs.CalleeUSR]

			if origin == nil || derived == nil {
				continue
			}

			origin.Throw.Union(derived.Throw)
		}
	}
}
