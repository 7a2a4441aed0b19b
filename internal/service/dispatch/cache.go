package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/berth-ops/notify-api/internal/model"
)

// Cache is the dispatcher's read-through cache for channels and per-event
// rule lists. Admin writes invalidate it so config changes reach the next
// dispatch without waiting for the TTL.
type Cache struct {
	channels *cache.Cache
	rules    *cache.Cache
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		channels: cache.New(ttl, 2*ttl),
		rules:    cache.New(ttl, 2*ttl),
	}
}

func (c *Cache) channel(id uuid.UUID) (*model.Channel, bool) {
	v, ok := c.channels.Get(id.String())
	if !ok {
		return nil, false
	}
	ch, ok := v.(*model.Channel)
	return ch, ok
}

func (c *Cache) setChannel(ch *model.Channel) {
	c.channels.Set(ch.ID.String(), ch, cache.DefaultExpiration)
}

func (c *Cache) rulesFor(eventType string) ([]*model.Rule, bool) {
	v, ok := c.rules.Get(eventType)
	if !ok {
		return nil, false
	}
	rules, ok := v.([]*model.Rule)
	return rules, ok
}

func (c *Cache) setRules(eventType string, rules []*model.Rule) {
	c.rules.Set(eventType, rules, cache.DefaultExpiration)
}

// InvalidateChannel drops one channel from the cache.
func (c *Cache) InvalidateChannel(id uuid.UUID) {
	c.channels.Delete(id.String())
}

// InvalidateRules drops every cached rule list. Rule writes are rare, a
// full flush is simpler than tracking which event types changed.
func (c *Cache) InvalidateRules() {
	c.rules.Flush()
}
