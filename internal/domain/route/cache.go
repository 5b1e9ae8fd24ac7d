package route

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes compiled matchers. Concurrent first lookups for the same
// pattern share a single compilation.
type Cache struct {
	matchers sync.Map // key -> *Matcher
	group    singleflight.Group
}

// NewCache creates an empty matcher cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the matcher for (path, regex), compiling it on first use.
// Compile errors are returned to every waiting caller and are not cached.
func (c *Cache) Get(path, regex string) (*Matcher, error) {
	key := cacheKey(path, regex)
	if m, ok := c.matchers.Load(key); ok {
		return m.(*Matcher), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if m, ok := c.matchers.Load(key); ok {
			return m, nil
		}
		m, err := Compile(path, regex)
		if err != nil {
			return nil, err
		}
		c.matchers.Store(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Matcher), nil
}

// Len returns the number of cached matchers.
func (c *Cache) Len() int {
	n := 0
	c.matchers.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

func cacheKey(path, regex string) string {
	if regex != "" {
		return "re:" + regex
	}
	return "path:" + path
}
