package mapping

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of parsed desired mappings kept in memory.
const DefaultCacheSize = 256

// Source is anything that carries a declarative schema, usually a descriptor.
type Source interface {
	QualifiedName() string
	Schema() []byte
}

// Cache memoises parsed desired mappings. Readiness probes rebuild every
// desired mapping on each poll, and the schemas only change on restart.
type Cache struct {
	cache *lru.Cache[string, IndexMapping]
}

// NewCache creates a cache holding up to size parsed mappings.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, IndexMapping](size)
	return &Cache{cache: cache}
}

// cacheKey combines the qualified name with a hash of the schema so a
// changed schema under the same name never hits a stale entry.
func cacheKey(src Source) string {
	hash := sha256.Sum256(src.Schema())
	return src.QualifiedName() + "\x00" + hex.EncodeToString(hash[:])
}

// Desired returns the mapping declared by src. The result owns its
// property slice and may be modified by the caller.
func (c *Cache) Desired(src Source) (IndexMapping, error) {
	key := cacheKey(src)
	if m, ok := c.cache.Get(key); ok {
		return m.Clone(), nil
	}

	m, err := FromJSON(src.QualifiedName(), src.Schema())
	if err != nil {
		return IndexMapping{}, err
	}
	c.cache.Add(key, m)
	return m.Clone(), nil
}

// Len returns the number of cached mappings.
func (c *Cache) Len() int {
	return c.cache.Len()
}
