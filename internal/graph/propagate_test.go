package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func propagate(t *testing.T, g *Graph) {
	t.Helper()

	g.ComputeBackEdges()

	require.NoError(t, NewPropagator(g, nil).Run(context.Background()))
}

func TestPropagate_BasicChain(t *testing.T) {
	t.Parallel()

	// f throws E; g calls f with no handler; h calls g catching E.
	e := ex("c:@S@E")

	f := fn("f", e)
	g := fn("g")
	call(g, "f", "g.cc:2")
	h := fn("h")
	call(h, "g", "h.cc:2", e)

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{f, g, h})
	propagate(t, gr)

	assert.True(t, gr.Resolve("f").Throw.Contains(e.USR))
	assert.True(t, gr.Resolve("g").Throw.Contains(e.USR))
	assert.Empty(t, gr.Resolve("h").Throw)
}

func TestPropagate_WildcardHandler(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	f := fn("f", e)
	g := fn("g")
	call(g, "f", "g.cc:2")
	h := fn("h")
	call(h, "g", "h.cc:2", Ex{USR: WildcardUSR})

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{f, g, h})
	propagate(t, gr)

	assert.Empty(t, gr.Resolve("h").Throw)
}

func TestPropagate_ParentChainHandler(t *testing.T) {
	t.Parallel()

	x := ex("c:@S@X", "c:@S@B", "c:@S@A")

	f := fn("f", x)
	g := fn("g")
	call(g, "f", "g.cc:2", ex("c:@S@A"))

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{f, g})
	propagate(t, gr)

	assert.Empty(t, gr.Resolve("g").Throw)
}

func TestPropagate_VirtualExpansionReconciled(t *testing.T) {
	t.Parallel()

	e1 := ex("c:@S@E1")
	e2 := ex("c:@S@E2")

	table := NewPolyTable()
	table.Merge([]ClassRecord{
		classWithOverride("Circle::area", "Shape::area"),
		classWithOverride("Square::area", "Shape::area"),
	})

	base := fn("Shape::area")
	circle := fn("Circle::area", e1)
	square := fn("Square::area", e2)

	caller := fn("caller")
	call(caller, "Shape::area", "caller.cc:7")

	gr := NewGraph(table, true, nil)
	gr.AddFunctions([]*Function{base, circle, square, caller})
	propagate(t, gr)

	// The caller sees every override's exceptions.
	assert.True(t, gr.Resolve("caller").Throw.Contains(e1.USR))
	assert.True(t, gr.Resolve("caller").Throw.Contains(e2.USR))

	// Reconciliation lifts them onto the declared base as well.
	assert.True(t, gr.Resolve("Shape::area").Throw.Contains(e1.USR))
	assert.True(t, gr.Resolve("Shape::area").Throw.Contains(e2.USR))
}

func TestPropagate_MutualRecursionTerminates(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")

	f := fn("f", e)
	g := fn("g")
	call(f, "g", "f.cc:2")
	call(g, "f", "g.cc:2")

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{f, g})
	propagate(t, gr)

	assert.True(t, gr.Resolve("f").Throw.Contains(e.USR))
	assert.True(t, gr.Resolve("g").Throw.Contains(e.USR))
}

func TestPropagate_ThrowSupersetOfDirect(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")
	f := ex("c:@S@F")

	callee := fn("callee", e)
	caller := fn("caller", f)
	call(caller, "callee", "caller.cc:2")

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{callee, caller})

	for _, function := range gr.Functions {
		assert.True(t, function.Throw.ContainsAll(function.DirectThrow))
	}

	propagate(t, gr)

	for _, function := range gr.Functions {
		assert.True(t, function.Throw.ContainsAll(function.DirectThrow))
	}

	// Caller accumulates escaped callee throws on top of its own.
	assert.True(t, gr.Resolve("caller").Throw.Contains(e.USR))
	assert.True(t, gr.Resolve("caller").Throw.Contains(f.USR))
}

func TestPropagate_CallerSupersetInvariant(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")
	f := ex("c:@S@F")

	callee := fn("callee", e, f)
	caller := fn("caller")
	cs := call(caller, "callee", "caller.cc:2", e)

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{callee, caller})
	propagate(t, gr)

	escaped := Filter(gr.Resolve("callee").Throw, cs.Catch)
	assert.True(t, gr.Resolve("caller").Throw.ContainsAll(escaped))
}

func TestPropagate_Cancellation(t *testing.T) {
	t.Parallel()

	e := ex("c:@S@E")
	f := fn("f", e)

	gr := NewGraph(NewPolyTable(), false, nil)
	gr.AddFunctions([]*Function{f})
	gr.ComputeBackEdges()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPropagator(gr, nil).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
