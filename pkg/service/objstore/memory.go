package objstore

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-memory Storage for local runs and tests
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Storage = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string][]byte),
	}
}

func (s *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.objects[key]
	if !exists {
		return nil, goerr.New("object not found", goerr.V("key", key))
	}

	return append([]byte(nil), data...), nil
}

func (s *Memory) Close() error {
	return nil
}
