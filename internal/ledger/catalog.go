package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/memberhub/backend/internal/models"
)

// Catalog serves the read-mostly plan and level-bonus tables.
type Catalog interface {
	Plan(ctx context.Context, planID uuid.UUID) (*models.PlanConfig, error)
	LevelBonus(ctx context.Context, level int) (models.LevelBonus, error)
}

// CachedCatalog memoizes catalog rows for ttl. Usage counters and account
// levels are never cached, so a level change is visible on the next check.
// A ttl of zero or less disables caching; every read goes to src.
type CachedCatalog struct {
	src   Catalog
	cache *cache.Cache
}

func NewCachedCatalog(src Catalog, ttl time.Duration) *CachedCatalog {
	c := &CachedCatalog{src: src}
	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}
	return c
}

var _ Catalog = (*CachedCatalog)(nil)

func (c *CachedCatalog) Plan(ctx context.Context, planID uuid.UUID) (*models.PlanConfig, error) {
	if c.cache == nil {
		return c.src.Plan(ctx, planID)
	}
	key := "plan:" + planID.String()
	if v, ok := c.cache.Get(key); ok {
		return v.(*models.PlanConfig), nil
	}
	p, err := c.src.Plan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", planID, err)
	}
	c.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

func (c *CachedCatalog) LevelBonus(ctx context.Context, level int) (models.LevelBonus, error) {
	if c.cache == nil {
		return c.src.LevelBonus(ctx, level)
	}
	key := "bonus:" + strconv.Itoa(level)
	if v, ok := c.cache.Get(key); ok {
		return v.(models.LevelBonus), nil
	}
	b, err := c.src.LevelBonus(ctx, level)
	if err != nil {
		return models.LevelBonus{}, fmt.Errorf("load level bonus %d: %w", level, err)
	}
	c.cache.Set(key, b, cache.DefaultExpiration)
	return b, nil
}

// Flush drops every cached row so edits to plan_configs or level_bonuses are
// seen on the next read. Served by POST /api/admin/catalog/flush.
func (c *CachedCatalog) Flush() {
	if c.cache != nil {
		c.cache.Flush()
	}
}
