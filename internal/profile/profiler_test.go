package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/exceptrace/internal/graph"
)

func ex(usr string, parents ...string) graph.Ex {
	return graph.Ex{USR: usr, Loc: usr + ".h:1", Parents: parents}
}

func fn(usr, sname string, throws ...graph.Ex) *graph.Function {
	return &graph.Function{
		USR:         usr,
		SName:       sname,
		Loc:         usr + ".cc:1",
		DirectThrow: graph.NewExSet(throws...),
		Throw:       graph.NewExSet(throws...),
		Callers:     make(graph.USRSet),
	}
}

func call(owner *graph.Function, calleeUSR, calleeSName, loc string, catches ...graph.Ex) {
	owner.CallSites = append(owner.CallSites, &graph.CallSite{
		CalleeUSR:   calleeUSR,
		CalleeSName: calleeSName,
		Loc:         loc,
		Catch:       graph.NewExSet(catches...),
	})
}

func build(t *testing.T, fns ...*graph.Function) *graph.Graph {
	t.Helper()

	g := graph.NewGraph(graph.NewPolyTable(), false, nil)
	g.AddFunctions(fns)
	g.ComputeBackEdges()

	require.NoError(t, graph.NewPropagator(g, nil).Run(context.Background()))

	return g
}

func TestProfiler_UniverseExclusions(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	thrower := fn("thrower", "thrower", e)
	silent := fn("silent", "silent")

	caller := fn("caller", "caller")
	call(caller, "thrower", "thrower", "caller.cc:2") // in universe
	call(caller, "silent", "silent", "caller.cc:3")   // callee throws nothing
	call(caller, "missing", "missing", "caller.cc:4") // unresolved callee

	system := fn("system", "std::system")
	system.Tag = "S"
	call(system, "thrower", "thrower", "system.cc:2") // system caller context

	g := build(t, thrower, silent, caller, system)

	// system's site calls a resolved, throwing callee, so it would qualify
	// if not for the tag.
	p := New(g)

	assert.Equal(t, 1, p.UniverseSize())
}

func TestProfiler_BaselineLevel(t *testing.T) {
	t.Parallel()

	// One site; callee throws {E1, E2}; the handler catches E1.
	e1 := ex("c:@S@E1")
	e2 := ex("c:@S@E2")

	callee := fn("callee", "callee", e1, e2)
	caller := fn("caller", "caller")
	call(caller, "callee", "callee", "caller.cc:2", e1)

	p := New(build(t, callee, caller))

	r := p.ProfileLevel(1)

	assert.Equal(t, 2, r.Thrown)
	assert.Equal(t, 1, r.Caught)
	assert.InDelta(t, 0.5, r.Rate, 1e-9)
	assert.Equal(t, "0.50", r.RateString())
}

func TestProfiler_BaselineSkipsSingleThrowCallees(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	callee := fn("callee", "callee", e)
	caller := fn("caller", "caller")
	call(caller, "callee", "callee", "caller.cc:2", e)

	p := New(build(t, callee, caller))

	r := p.ProfileLevel(1)

	assert.Zero(t, r.Thrown)
	assert.Equal(t, "-", r.RateString())
}

// callerNameLevel is the compact level grouping by caller simple name only
// (legacy 17).
const callerNameLevel = 9

func TestProfiler_CallerNameDropOne(t *testing.T) {
	t.Parallel()

	// Three sites share the caller simple name; one catches, two do not.
	// The single caught site is dropped before accounting.
	e := ex("c:@S@E")

	callee := fn("callee", "callee", e)

	a := fn("a", "ns1::work")
	call(a, "callee", "callee", "a.cc:2", e) // catches
	b := fn("b", "ns2::work")
	call(b, "callee", "callee", "b.cc:2")
	c := fn("c", "ns3::work")
	call(c, "callee", "callee", "c.cc:2")

	p := New(build(t, callee, a, b, c))

	r := p.ProfileLevel(callerNameLevel)

	assert.Equal(t, 2, r.Thrown)
	assert.Equal(t, 0, r.Caught)
}

func TestProfiler_SmallGroupsSkipped(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	callee := fn("callee", "callee", e)
	caller := fn("caller", "only::one")
	call(caller, "callee", "callee", "caller.cc:2", e)

	p := New(build(t, callee, caller))

	r := p.ProfileLevel(callerNameLevel)

	assert.Zero(t, r.Thrown)
	assert.Zero(t, r.Caught)
}

func TestProfiler_UncaughtGroupsSkipped(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	callee := fn("callee", "callee", e)

	a := fn("a", "ns1::work")
	call(a, "callee", "callee", "a.cc:2")
	b := fn("b", "ns2::work")
	call(b, "callee", "callee", "b.cc:2")

	p := New(build(t, callee, a, b))

	r := p.ProfileLevel(callerNameLevel)

	assert.Zero(t, r.Thrown)
	assert.Zero(t, r.Caught)
}

func TestProfiler_WholeUniverseThrownTotal(t *testing.T) {
	t.Parallel()

	// At the coarsest level the group is the whole universe; with two or
	// more caught sites nothing is dropped and thrown must equal the sum
	// of callee throw-set sizes over all sites.
	e1 := ex("c:@S@E1")
	e2 := ex("c:@S@E2")

	big := fn("big", "big", e1, e2)
	small := fn("small", "small", e1)

	a := fn("a", "a")
	call(a, "big", "big", "a.cc:2", e1)
	b := fn("b", "b")
	call(b, "small", "small", "b.cc:2", e1)
	c := fn("c", "c")
	call(c, "big", "big", "c.cc:2")

	p := New(build(t, big, small, a, b, c))

	r := p.ProfileLevel(ContextLevels)

	assert.Equal(t, 2+1+2, r.Thrown)
	assert.Equal(t, 2, r.Caught)
}

func TestProfiler_ExactPairGrouping(t *testing.T) {
	t.Parallel()

	// Level 2 groups by (this callee, this caller): two sites in the same
	// function calling the same callee form one group; a site in another
	// function does not join it.
	e1 := ex("c:@S@E1")
	e2 := ex("c:@S@E2")

	callee := fn("callee", "callee", e1, e2)

	a := fn("a", "a")
	call(a, "callee", "callee", "a.cc:2", e1)
	call(a, "callee", "callee", "a.cc:9", e1, e2)

	b := fn("b", "b")
	call(b, "callee", "callee", "b.cc:2")

	p := New(build(t, callee, a, b))

	r := p.ProfileLevel(2)

	// Only a's pair qualifies; both sites are caught so none is dropped.
	assert.Equal(t, 4, r.Thrown)
	assert.Equal(t, 3, r.Caught)
}

func TestProfiler_AllLevels(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	callee := fn("callee", "callee", e)
	a := fn("a", "ns::a")
	call(a, "callee", "callee", "a.cc:2", e)
	b := fn("b", "ns::b")
	call(b, "callee", "callee", "b.cc:2")

	p := New(build(t, callee, a, b))

	results := p.Profile()

	require.Len(t, results, ContextLevels)

	for i, r := range results {
		assert.Equal(t, i+1, r.Context)
		assert.Equal(t, 2*(i+1)-1, r.Legacy)
	}
}
