package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/tenancy/internal/infrastructure/config"
)

// NewProvisionCache builds the cache selected by tenancy.provision_cache.
// It returns nil for "none", which disables caching entirely. When Redis is
// selected but unreachable the service falls back to an in-memory cache.
func NewProvisionCache(tc config.TenancyConfig, rc config.RedisConfig, logger *zap.Logger) (ProvisionCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch tc.ProvisionCache {
	case config.ProvisionCacheNone, "":
		return nil, nil
	case config.ProvisionCacheMemory:
		logger.Info("Using in-memory namespace provision cache", zap.Duration("ttl", tc.ProvisionCacheTTL))
		return NewInMemoryProvisionCache(tc.ProvisionCacheTTL), nil
	case config.ProvisionCacheRedis:
		c, err := NewRedisProvisionCache(rc, tc.ProvisionCacheTTL)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-memory namespace provision cache", zap.Error(err))
			return NewInMemoryProvisionCache(tc.ProvisionCacheTTL), nil
		}
		logger.Info("Using Redis namespace provision cache", zap.String("addr", rc.Addr()))
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provision cache %q", tc.ProvisionCache)
	}
}
