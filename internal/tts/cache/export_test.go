package cache

// Contains reports whether key is present, without touching recency or expiry.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Contains(key)
}
