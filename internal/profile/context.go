package profile

import (
	"sort"

	"github.com/Sumatoshi-tech/exceptrace/pkg/mapx"
)

// ContextLevels is the number of context levels in the compact encoding.
//
// Level 1 is the per-call-site baseline. Levels 2 through 17 form the product
// of four callee specificities (this callee, same simple name, same scope,
// any) and four caller specificities (this caller, same caller name, same
// caller scope, any): level = 2 + 4*caller + callee with the specificities
// ordered exact, name, scope, any. The legacy encoding numbers the same
// levels 1, 3, 5, ..., 33.
const ContextLevels = 17

// contextSpecificity decodes a compact level (2..17) into its callee and
// caller specificities.
func contextSpecificity(level int) (calleeSpec, callerSpec specificity) {
	i := level - 2

	return specificity(i % 4), specificity(i / 4)
}

// LegacyContext converts a compact level to its legacy odd number.
func LegacyContext(compact int) int {
	return 2*compact - 1
}

// RemapLegacy converts a legacy context number to the compact 1..17 range.
// Level 1 maps to itself; even legacy numbers are rounded up to the odd
// level above them before dividing.
func RemapLegacy(legacy int) int {
	if legacy == 1 {
		return 1
	}

	if legacy%2 == 0 {
		legacy++
	}

	return (legacy + 1) / 2
}

// checkedContexts is the refinement relation over compact context levels:
// checking a handler at some level implies the levels whose callee and
// caller specificities are both no finer. Exact refines name and scope,
// name and scope refine any; name and scope are incomparable. The baseline
// level is the finest of all, so it implies every level.
var checkedContexts = map[int][]int{
	1:  {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17},
	2:  {2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17},
	3:  {3, 5, 7, 9, 11, 13, 15, 17},
	4:  {4, 5, 8, 9, 12, 13, 16, 17},
	5:  {5, 9, 13, 17},
	6:  {6, 7, 8, 9, 14, 15, 16, 17},
	7:  {7, 9, 15, 17},
	8:  {8, 9, 16, 17},
	9:  {9, 17},
	10: {10, 11, 12, 13, 14, 15, 16, 17},
	11: {11, 13, 15, 17},
	12: {12, 13, 16, 17},
	13: {13, 17},
	14: {14, 15, 16, 17},
	15: {15, 17},
	16: {16, 17},
	17: {17},
}

// CheckedContexts returns the compact levels implied by checking at the
// given compact level. Unknown levels yield nil.
func CheckedContexts(compact int) []int {
	return mapx.CloneSlice(checkedContexts[compact])
}

// ExpandContexts returns the union of the input compact levels and every
// level they imply, sorted ascending.
func ExpandContexts(compact []int) []int {
	seen := make(map[int]struct{})

	for _, c := range compact {
		seen[c] = struct{}{}

		for _, implied := range checkedContexts[c] {
			seen[implied] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))

	for c := range seen {
		out = append(out, c)
	}

	sort.Ints(out)

	return out
}
