// Package profile computes catch-effectiveness statistics over the completed
// call graph: for each context level, the ratio of exceptions thrown to
// exceptions caught across the call sites grouped by that context.
package profile

import (
	"fmt"

	"github.com/Sumatoshi-tech/exceptrace/internal/graph"
	"github.com/Sumatoshi-tech/exceptrace/pkg/mapx"
)

// specificity of one side of a context: how narrowly call sites are grouped.
type specificity int

const (
	specExact specificity = iota // this callee / this caller
	specName                     // same simple name
	specScope                    // same scope
	specAny                      // no constraint
)

// siteInfo is one member of the profiling universe with its precomputed
// accounting attributes.
type siteInfo struct {
	cs *graph.CallSite

	calleeUSR   string
	calleeName  string
	calleeScope string
	callerUSR   string
	callerName  string
	callerScope string

	throwCount int
	nCaught    int
	caught     bool
}

// Profiler holds the call-site universe and the derived indices.
//
// The universe is every call site whose callee resolves in the graph, whose
// callee throws at least one exception, and whose owning function is not
// system-tagged. Sites are identified by their position in the universe
// slice, which is deterministic (owner USR, then extraction order).
type Profiler struct {
	sites []siteInfo

	idxCallee      map[string][]int
	idxCalleeName  map[string][]int
	idxCalleeScope map[string][]int
	idxCaller      map[string][]int
	idxCallerName  map[string][]int
	idxCallerScope map[string][]int
}

// Result is the profile of one context level.
type Result struct {
	Context int     `json:"context"`
	Legacy  int     `json:"legacy"`
	Thrown  int     `json:"thrown"`
	Caught  int     `json:"caught"`
	Rate    float64 `json:"rate"`
}

// RateString renders the catch rate, or "-" when nothing was thrown.
func (r Result) RateString() string {
	if r.Thrown == 0 {
		return "-"
	}

	return fmt.Sprintf("%.2f", r.Rate)
}

// New builds a profiler over the propagated graph.
func New(g *graph.Graph) *Profiler {
	p := &Profiler{
		idxCallee:      make(map[string][]int),
		idxCalleeName:  make(map[string][]int),
		idxCalleeScope: make(map[string][]int),
		idxCaller:      make(map[string][]int),
		idxCallerName:  make(map[string][]int),
		idxCallerScope: make(map[string][]int),
	}

	for _, usr := range mapx.SortedKeys(g.Functions) {
		owner := g.Functions[usr]
		if owner.System() {
			continue
		}

		for _, cs := range owner.CallSites {
			callee := g.Resolve(cs.CalleeUSR)
			if callee == nil || len(callee.Throw) == 0 {
				continue
			}

			p.addSite(cs, owner, callee)
		}
	}

	return p
}

// addSite appends one universe member and indexes it.
func (p *Profiler) addSite(cs *graph.CallSite, owner, callee *graph.Function) {
	nCaught := 0

	for _, t := range callee.Throw {
		if graph.CaughtBy(t, cs.Catch) {
			nCaught++
		}
	}

	info := siteInfo{
		cs:          cs,
		calleeUSR:   cs.CalleeUSR,
		calleeName:  graph.SimpleName(cs.CalleeSName),
		calleeScope: graph.Scope(cs.CalleeSName),
		callerUSR:   owner.USR,
		callerName:  graph.SimpleName(owner.SName),
		callerScope: graph.Scope(owner.SName),
		throwCount:  len(callee.Throw),
		nCaught:     nCaught,
		caught:      nCaught > 0,
	}

	id := len(p.sites)
	p.sites = append(p.sites, info)

	p.idxCallee[info.calleeUSR] = append(p.idxCallee[info.calleeUSR], id)
	p.idxCalleeName[info.calleeName] = append(p.idxCalleeName[info.calleeName], id)
	p.idxCalleeScope[info.calleeScope] = append(p.idxCalleeScope[info.calleeScope], id)
	p.idxCaller[info.callerUSR] = append(p.idxCaller[info.callerUSR], id)
	p.idxCallerName[info.callerName] = append(p.idxCallerName[info.callerName], id)
	p.idxCallerScope[info.callerScope] = append(p.idxCallerScope[info.callerScope], id)
}

// UniverseSize returns the number of call sites being profiled.
func (p *Profiler) UniverseSize() int {
	return len(p.sites)
}

// Profile computes the statistics for every context level, 1 through
// ContextLevels, in order.
func (p *Profiler) Profile() []Result {
	results := make([]Result, 0, ContextLevels)

	for level := 1; level <= ContextLevels; level++ {
		results = append(results, p.ProfileLevel(level))
	}

	return results
}

// ProfileLevel computes the statistics for one compact context level.
func (p *Profiler) ProfileLevel(level int) Result {
	r := Result{Context: level, Legacy: LegacyContext(level)}

	if level == baselineContext {
		p.profileBaseline(&r)
	} else {
		p.profileGrouped(&r, level)
	}

	if r.Thrown > 0 {
		r.Rate = float64(r.Caught) / float64(r.Thrown)
	}

	return r
}

// profileBaseline is the per-call-site level: only sites whose callee throws
// at least two exception types and whose handlers catch at least one of them
// are counted.
func (p *Profiler) profileBaseline(r *Result) {
	for i := range p.sites {
		s := &p.sites[i]
		if s.throwCount < minBaselineThrows || !s.caught {
			continue
		}

		r.Thrown += s.throwCount
		r.Caught += s.nCaught
	}
}

// profileGrouped partitions the universe by the level's callee/caller
// specificities, then accounts each group that has at least two members and
// at least one caught site. A group with exactly one caught site has that
// site dropped before accounting, so a handler is never credited for
// catching only its own throws.
func (p *Profiler) profileGrouped(r *Result, level int) {
	calleeSpec, callerSpec := contextSpecificity(level)

	visited := make([]bool, len(p.sites))

	for id := range p.sites {
		if visited[id] {
			continue
		}

		group := p.groupOf(id, calleeSpec, callerSpec)

		for _, member := range group {
			visited[member] = true
		}

		if len(group) < minGroupSize {
			continue
		}

		caughtID := -1
		caughtCount := 0

		for _, member := range group {
			if p.sites[member].caught {
				caughtID = member
				caughtCount++
			}
		}

		if caughtCount == 0 {
			continue
		}

		for _, member := range group {
			if caughtCount == 1 && member == caughtID {
				continue
			}

			r.Thrown += p.sites[member].throwCount
			r.Caught += p.sites[member].nCaught
		}
	}
}

// groupOf returns the universe subset that shares the given site's context,
// as sorted site ids.
func (p *Profiler) groupOf(id int, calleeSpec, callerSpec specificity) []int {
	calleeIdx := p.sideIndex(id, calleeSpec, true)
	callerIdx := p.sideIndex(id, callerSpec, false)

	switch {
	case calleeIdx == nil && callerIdx == nil:
		all := make([]int, len(p.sites))
		for i := range all {
			all[i] = i
		}

		return all
	case calleeIdx == nil:
		return callerIdx
	case callerIdx == nil:
		return calleeIdx
	default:
		return intersectSorted(calleeIdx, callerIdx)
	}
}

// sideIndex picks the index list for one side of the context. A nil return
// means "no constraint" (the whole universe).
func (p *Profiler) sideIndex(id int, spec specificity, callee bool) []int {
	s := &p.sites[id]

	if callee {
		switch spec {
		case specExact:
			return p.idxCallee[s.calleeUSR]
		case specName:
			return p.idxCalleeName[s.calleeName]
		case specScope:
			return p.idxCalleeScope[s.calleeScope]
		case specAny:
			return nil
		}
	}

	switch spec {
	case specExact:
		return p.idxCaller[s.callerUSR]
	case specName:
		return p.idxCallerName[s.callerName]
	case specScope:
		return p.idxCallerScope[s.callerScope]
	case specAny:
		return nil
	}

	return nil
}

// intersectSorted intersects two ascending id lists.
func intersectSorted(a, b []int) []int {
	var out []int

	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	return out
}

const (
	// baselineContext is the per-call-site level.
	baselineContext = 1

	// minBaselineThrows is the callee throw-set size below which a site is
	// uninteresting at the baseline level: a single-exception callee cannot
	// show partial catching.
	minBaselineThrows = 2

	// minGroupSize is the smallest group worth aggregating.
	minGroupSize = 2
)
