package profile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixesInput = `[
  {
    "repository": "acme/widgets",
    "commits": [
      {
        "hash": "deadbeef",
        "fix_1": {"Context": [17], "Caller.is noexcept": false},
        "fix_2": {"Context": [33], "Caller.is noexcept": true}
      }
    ]
  },
  {
    "repository": "acme/gears",
    "commits": [
      {
        "hash": "cafef00d",
        "fix_1": {"Context": [1, 32], "Caller.is noexcept": false}
      }
    ]
  }
]`

func TestReadFixes(t *testing.T) {
	t.Parallel()

	fixes, err := ReadFixes(strings.NewReader(fixesInput))
	require.NoError(t, err)
	require.Len(t, fixes, 3)

	byNoexcept := map[bool]int{}
	for _, fix := range fixes {
		byNoexcept[fix.CallerNoexcept]++
	}

	assert.Equal(t, 2, byNoexcept[false])
	assert.Equal(t, 1, byNoexcept[true])
}

func TestReadFixes_RemapsAndExpands(t *testing.T) {
	t.Parallel()

	fixes, err := ReadFixes(strings.NewReader(
		`[{"commits": [{"fix_1": {"Context": [17], "Caller.is noexcept": false}}]}]`,
	))
	require.NoError(t, err)
	require.Len(t, fixes, 1)

	// Legacy 17 is compact 9 (caller name, callee any), which implies 17.
	assert.Equal(t, []int{9, 17}, fixes[0].Contexts)
}

func TestReadFixes_Malformed(t *testing.T) {
	t.Parallel()

	_, err := ReadFixes(strings.NewReader(`{"not": "an array"}`))
	require.Error(t, err)
}

func TestReadFixes_BadFixRecord(t *testing.T) {
	t.Parallel()

	_, err := ReadFixes(strings.NewReader(
		`[{"commits": [{"fix_1": {"Context": "nope"}}]}]`,
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fix_1")
}

func TestCountFixes(t *testing.T) {
	t.Parallel()

	fixes := []Fix{
		{Contexts: []int{9, 17}, CallerNoexcept: false},
		{Contexts: []int{17}, CallerNoexcept: true},
	}

	stats := CountFixes(fixes)

	assert.Equal(t, 2, stats.Fixes)
	assert.Equal(t, FixCount{Total: 1}, stats.PerContext[9])
	assert.Equal(t, FixCount{Total: 2, Noexcept: 1}, stats.PerContext[17])
}
