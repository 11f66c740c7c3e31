package mru_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/objpack/refgraph/mru"
)

func Test_Cache_Get_Promotes_To_Most_Recently_Used(t *testing.T) {
	t.Parallel()

	c := mru.New[int, string](3, nil)
	c.Set(1, "a")
	c.Set(2, "b")
	c.Set(3, "c")

	// Touch 1, making 2 the least-recently-used.
	_, ok := c.Get(1)
	require.True(t, ok)

	require.Equal(t, []int{1, 3, 2}, c.Keys())
}

func Test_Cache_Evicts_Least_Recently_Used_Exactly_Once(t *testing.T) {
	t.Parallel()

	var evicted []int

	c := mru.New[int, string](2, func(key int, _ string) {
		evicted = append(evicted, key)
	})

	c.Set(1, "a")
	c.Set(2, "b")
	c.Set(3, "c") // evicts 1

	require.Equal(t, []int{1}, evicted)
	require.Equal(t, 2, c.Len())

	_, ok := c.Get(1)
	require.False(t, ok)
}

func Test_Cache_Remove_Does_Not_Invoke_Evict_Callback(t *testing.T) {
	t.Parallel()

	var evicted []int

	c := mru.New[int, string](2, func(key int, _ string) {
		evicted = append(evicted, key)
	})

	c.Set(1, "a")
	c.Remove(1)

	require.Empty(t, evicted)
	require.Equal(t, 0, c.Len())
}

func Test_Cache_Keys_Snapshot_Is_Unaffected_By_Later_Mutation(t *testing.T) {
	t.Parallel()

	c := mru.New[int, string](4, nil)
	c.Set(1, "a")
	c.Set(2, "b")

	snapshot := c.Keys()
	c.Set(3, "c")
	c.Remove(1)

	require.Equal(t, []int{2, 1}, snapshot)
	require.Equal(t, []int{3, 2}, c.Keys())
}

func Test_Cache_Set_Existing_Key_Updates_Value_Without_Growing(t *testing.T) {
	t.Parallel()

	c := mru.New[int, string](2, nil)
	c.Set(1, "a")
	c.Set(1, "b")

	require.Equal(t, 1, c.Len())

	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "b", v)
}
