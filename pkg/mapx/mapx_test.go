package mapx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClone(t *testing.T) {
	t.Parallel()

	src := map[string]int{"a": 1, "b": 2}
	clone := Clone(src)

	assert.Equal(t, src, clone)

	clone["a"] = 9
	assert.Equal(t, 1, src["a"])

	assert.Nil(t, Clone[string, int](nil))
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()

	m := map[string]int{"c": 1, "a": 2, "b": 3}

	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	assert.Nil(t, SortedKeys[string, int](nil))
}

func TestCloneSlice(t *testing.T) {
	t.Parallel()

	src := []int{1, 2, 3}
	clone := CloneSlice(src)

	assert.Equal(t, src, clone)

	clone[0] = 9
	assert.Equal(t, 1, src[0])

	assert.Nil(t, CloneSlice[int](nil))
}

func TestUnique(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
	assert.Nil(t, Unique[string](nil))
}
