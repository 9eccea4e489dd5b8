package hostfunc

import (
	"sort"
	"sync"
)

// ConfigStore holds the string configuration a host seeds before the guest
// runs. The guest can only read it.
type ConfigStore struct {
	data map[string]string
	mu   sync.RWMutex
}

func NewConfigStore() *ConfigStore {
	return &ConfigStore{data: make(map[string]string)}
}

// Get returns the value for key. An empty value reports false, the same as an
// unset key.
func (s *ConfigStore) Get(key string) (string, bool) {
	s.mu.RLock()
	val := s.data[key]
	s.mu.RUnlock()
	return val, val != ""
}

func (s *ConfigStore) Set(key, value string) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// Load copies every entry of values into the store.
func (s *ConfigStore) Load(values map[string]string) {
	s.mu.Lock()
	for k, v := range values {
		s.data[k] = v
	}
	s.mu.Unlock()
}

func (s *ConfigStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// VarStore holds guest variables as opaque 64-bit words.
type VarStore struct {
	data map[string]uint64
	mu   sync.RWMutex
}

func NewVarStore() *VarStore {
	return &VarStore{data: make(map[string]uint64)}
}

// Get returns the stored word, or 0 when key is unset.
func (s *VarStore) Get(key string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key]
}

func (s *VarStore) Set(key string, value uint64) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *VarStore) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

func (s *VarStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *VarStore) All() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
