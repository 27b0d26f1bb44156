package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryClient implementa Client sobre patrickmn/go-cache.
// Vive lo que vive el proceso.
type MemoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cliente de cache en memoria.
// defaultTTL solo define el intervalo de limpieza; Set con ttl 0 no expira.
func NewMemory(prefix string, defaultTTL time.Duration) *MemoryClient {
	cleanup := time.Minute
	if defaultTTL > 0 && defaultTTL < cleanup {
		cleanup = defaultTTL
	}
	return &MemoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, cleanup),
	}
}

func (m *MemoryClient) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	exp := gocache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	m.c.Set(prefixed(m.prefix, key), value, exp)
	return nil
}

func (m *MemoryClient) Delete(_ context.Context, key string) error {
	m.c.Delete(prefixed(m.prefix, key))
	return nil
}

func (m *MemoryClient) Ping(context.Context) error { return nil }

func (m *MemoryClient) Close() error {
	m.c.Flush()
	return nil
}

// ItemCount retorna la cantidad de keys (incluye expiradas aún no limpiadas).
func (m *MemoryClient) ItemCount() int { return m.c.ItemCount() }
