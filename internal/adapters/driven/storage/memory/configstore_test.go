package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore(t *testing.T) {
	store := NewConfigStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.values)
}

func TestConfigStore_SetAndGet(t *testing.T) {
	store := NewConfigStore()

	err := store.Set("top_k", 5)
	require.NoError(t, err)

	val, ok := store.Get("top_k")
	assert.True(t, ok)
	assert.Equal(t, 5, val)
}

func TestConfigStore_Set_Update(t *testing.T) {
	store := NewConfigStore()

	require.NoError(t, store.Set("embedding.model", "nomic-embed-text"))
	require.NoError(t, store.Set("embedding.model", "mxbai-embed-large"))

	assert.Equal(t, "mxbai-embed-large", store.GetString("embedding.model"))
}

func TestConfigStore_Get_NotFound(t *testing.T) {
	store := NewConfigStore()

	val, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore()

	_ = store.Set("string", "value")
	_ = store.Set("int", 42)
	_ = store.Set("int64", int64(43))
	_ = store.Set("float", 0.7)
	_ = store.Set("bool", true)
	_ = store.Set("slice", []string{"a", "b"})

	assert.Equal(t, "value", store.GetString("string"))
	assert.Equal(t, "", store.GetString("int"))

	assert.Equal(t, 42, store.GetInt("int"))
	assert.Equal(t, 43, store.GetInt("int64"))
	assert.Equal(t, 0, store.GetInt("string"))

	assert.InDelta(t, 0.7, store.GetFloat("float"), 1e-9)
	assert.InDelta(t, 42.0, store.GetFloat("int"), 1e-9)
	assert.Zero(t, store.GetFloat("string"))

	assert.True(t, store.GetBool("bool"))
	assert.False(t, store.GetBool("int"))

	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("slice"))
	assert.Nil(t, store.GetStringSlice("string"))
}

func TestConfigStore_GetStringSlice_FromAnySlice(t *testing.T) {
	store := NewConfigStore()

	// TOML round-trips slices as []any.
	_ = store.Set("keywords", []any{"fha", "580", 7})

	assert.Equal(t, []string{"fha", "580"}, store.GetStringSlice("keywords"))
}

func TestConfigStore_SaveAndLoad_NoOp(t *testing.T) {
	store := NewConfigStore()
	_ = store.Set("key", "value")

	require.NoError(t, store.Save())
	require.NoError(t, store.Load())

	// Values survive the no-ops.
	assert.Equal(t, "value", store.GetString("key"))
}

func TestConfigStore_Path(t *testing.T) {
	store := NewConfigStore()
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_ConcurrentSetAndGet(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, store.Set(fmt.Sprintf("key-%d", n), n))
		}(i)
		go func(n int) {
			defer wg.Done()
			store.GetInt(fmt.Sprintf("key-%d", n))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		_, ok := store.Get(fmt.Sprintf("key-%d", i))
		assert.True(t, ok)
	}
}
