package hostfunc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigStoreGet(t *testing.T) {
	s := NewConfigStore()
	s.Load(map[string]string{"greeting": "hello", "blank": ""})

	val, ok := s.Get("greeting")
	assert.True(t, ok)
	assert.Equal(t, "hello", val)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	_, ok = s.Get("blank")
	assert.False(t, ok, "empty value reads as absent")
}

func TestConfigStoreAllIsCopy(t *testing.T) {
	s := NewConfigStore()
	s.Set("a", "1")

	all := s.All()
	all["a"] = "changed"

	val, _ := s.Get("a")
	assert.Equal(t, "1", val)
}

func TestVarStore(t *testing.T) {
	s := NewVarStore()
	assert.Equal(t, uint64(0), s.Get("count"))

	s.Set("count", 42)
	assert.Equal(t, uint64(42), s.Get("count"))

	s.Set("count", 1<<63)
	assert.Equal(t, uint64(1<<63), s.Get("count"))

	s.Set("other", 1)
	assert.Equal(t, []string{"count", "other"}, s.Keys())

	s.Delete("count")
	assert.Equal(t, uint64(0), s.Get("count"))
	assert.Equal(t, map[string]uint64{"other": 1}, s.All())
}

func TestVarStoreConcurrent(t *testing.T) {
	s := NewVarStore()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Set("key", uint64(n))
			s.Get("key")
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Keys(), 1)
}
