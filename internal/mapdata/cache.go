package mapdata

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// cache holds resolved payloads keyed by kind and layer id. Cost is the
// payload size in bytes.
type cache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func newCache(maxBytes int64, ttl time.Duration) (*cache, error) {
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create layer cache: %w", err)
	}
	return &cache{c: c, ttl: ttl}, nil
}

func (c *cache) get(kind, id string) (payload, bool) {
	v, ok := c.c.Get(kind + ":" + id)
	if !ok {
		return payload{}, false
	}
	p, ok := v.(payload)
	return p, ok
}

func (c *cache) set(kind, id string, p payload) {
	if c.ttl <= 0 {
		return
	}
	c.c.SetWithTTL(kind+":"+id, p, int64(len(p.body))+1, c.ttl)
	c.c.Wait()
}

func (c *cache) clear() {
	c.c.Clear()
}

func (c *cache) close() {
	c.c.Close()
}

type payload struct {
	body []byte
	file string
}
