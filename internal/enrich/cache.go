package enrich

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/TomySpagnoletti/trouve-ton-psy/pkg/geoapi"
)

// AreaSource resolves region and department codes to names.
type AreaSource interface {
	Region(ctx context.Context, code string) (*geoapi.Area, error)
	Department(ctx context.Context, code string) (*geoapi.Area, error)
}

// NameCache memoizes region and department names for one run. Only
// successful lookups are cached, so a failure is retried on the next call.
type NameCache struct {
	src AreaSource

	mu          sync.Mutex
	regions     map[string]string
	departments map[string]string
}

// NewNameCache returns an empty cache over src.
func NewNameCache(src AreaSource) *NameCache {
	return &NameCache{
		src:         src,
		regions:     make(map[string]string),
		departments: make(map[string]string),
	}
}

// Region returns the region name for code, or "" when it cannot be resolved.
func (c *NameCache) Region(ctx context.Context, code string) string {
	return c.lookup(ctx, "region", code, c.regions, c.src.Region)
}

// Department returns the department name for code, or "" when it cannot be
// resolved.
func (c *NameCache) Department(ctx context.Context, code string) string {
	return c.lookup(ctx, "department", code, c.departments, c.src.Department)
}

// Len returns the number of cached names.
func (c *NameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regions) + len(c.departments)
}

func (c *NameCache) lookup(ctx context.Context, kind, code string, cache map[string]string, fetch func(context.Context, string) (*geoapi.Area, error)) string {
	if code == "" {
		return ""
	}
	c.mu.Lock()
	name, ok := cache[code]
	c.mu.Unlock()
	if ok {
		return name
	}

	area, err := fetch(ctx, code)
	if err != nil || area == nil || area.Name == "" {
		zap.L().Warn("enrich: name lookup failed", zap.String("kind", kind), zap.String("code", code), zap.Error(err))
		return ""
	}

	c.mu.Lock()
	cache[code] = area.Name
	c.mu.Unlock()
	return area.Name
}
