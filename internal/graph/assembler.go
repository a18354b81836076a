package graph

import (
	"log/slog"

	"github.com/Sumatoshi-tech/exceptrace/pkg/mapx"
)

// Graph is the merged whole-program call graph. The function map owns the
// Function values; call sites are owned by their enclosing function.
type Graph struct {
	Functions map[string]*Function

	poly          PolyTable
	expandVirtual bool
	log           *slog.Logger
}

// NewGraph creates an empty graph. When expandVirtual is set, every loaded
// call site to a method present in poly is expanded with one synthetic site
// per transitive overrider.
func NewGraph(poly PolyTable, expandVirtual bool, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}

	return &Graph{
		Functions:     make(map[string]*Function),
		poly:          poly,
		expandVirtual: expandVirtual,
		log:           log,
	}
}

// Resolve returns the function with the given USR, or nil when the callee is
// an unresolved external.
func (g *Graph) Resolve(usr string) *Function {
	return g.Functions[usr]
}

// Len returns the number of functions in the graph.
func (g *Graph) Len() int {
	return len(g.Functions)
}

// AddFunctions merges one ICG fragment into the graph. A USR seen for the
// first time is installed as-is; a duplicate (overlapping TU includes) is
// merged by union of call sites and throw sets, first-seen SName/Loc/Tag
// winning.
func (g *Graph) AddFunctions(fns []*Function) {
	for _, fn := range fns {
		fn.normalize()

		existing, ok := g.Functions[fn.USR]
		if !ok {
			g.Functions[fn.USR] = fn

			if g.expandVirtual {
				g.expandCallSites(fn)
			}

			continue
		}

		g.mergeDuplicate(existing, fn)
	}
}

// mergeDuplicate folds a re-extracted copy of a function into the installed
// one.
func (g *Graph) mergeDuplicate(dst, src *Function) {
	dst.DirectThrow.Union(src.DirectThrow)
	dst.Throw.Union(src.Throw)

	added := 0

	for _, cs := range src.CallSites {
		if dst.findCallSite(cs.Key()) != nil {
			continue
		}

		cs.owner = dst
		dst.CallSites = append(dst.CallSites, cs)
		added++
	}

	if g.expandVirtual && added > 0 {
		g.expandCallSites(dst)
	}

	g.log.Debug("merged duplicate function", "usr", dst.USR, "new_sites", added)
}

// expandCallSites rewrites the call-site list of fn: every original site is
// kept, and one synthetic site is inserted for each transitive overrider of
// its callee, carrying Loc and Catch unchanged and recording the original
// callee as the expansion origin. Dedup by (callee, loc) makes the operation
// idempotent.
func (g *Graph) expandCallSites(fn *Function) {
	originals := mapx.CloneSlice(fn.CallSites)

	for _, cs := range originals {
		origin := cs.CalleeUSR
		if cs.Synthetic() {
			origin = cs.ExpandOrigin
		}

		for _, derived := range g.poly.Closure(cs.CalleeUSR) {
			synthetic := &CallSite{
				CalleeUSR:    derived.Name,
				CalleeSName:  derived.SName,
				Loc:          cs.Loc,
				ExpandOrigin: origin,
				Catch:        cs.Catch,
				owner:        fn,
			}

			if fn.findCallSite(synthetic.Key()) != nil {
				continue
			}

			fn.CallSites = append(fn.CallSites, synthetic)
		}
	}
}

// ComputeBackEdges fills the Callers index: caller is in Fn[u].Callers iff
// some call site of the caller targets u. Call sites whose callee is not in
// the graph contribute nothing.
func (g *Graph) ComputeBackEdges() {
	for _, usr := range mapx.SortedKeys(g.Functions) {
		fn := g.Functions[usr]

		for _, cs := range fn.CallSites {
			callee, ok := g.Functions[cs.CalleeUSR]
			if !ok {
				continue
			}

			callee.Callers.Add(fn.USR)
		}
	}
}

// SortedFunctions returns the functions ordered by USR, for dumping.
func (g *Graph) SortedFunctions() []*Function {
	out := make([]*Function, 0, len(g.Functions))

	for _, usr := range mapx.SortedKeys(g.Functions) {
		out = append(out, g.Functions[usr])
	}

	return out
}

// Relink restores the unexported ownership pointers after a graph has been
// deserialized from a snapshot, and re-establishes the Throw ⊇ DirectThrow
// invariant on every node.
func (g *Graph) Relink() {
	for _, fn := range g.Functions {
		fn.normalize()
	}
}
