package usecase

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	ztDomain "github.com/allisson/keyvault/internal/zerotrust/domain"
)

const policyCacheKey = "zt-policies"

// policyCache holds active policies for ttl. Concurrent reloads share one repository call.
type policyCache struct {
	repo  PolicyRepository
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu       sync.RWMutex
	policies map[ztDomain.Action]*ztDomain.Policy
	loadedAt time.Time
}

func newPolicyCache(repo PolicyRepository, ttl time.Duration) *policyCache {
	return &policyCache{repo: repo, ttl: ttl, now: time.Now}
}

func (c *policyCache) get(ctx context.Context, action ztDomain.Action) (*ztDomain.Policy, error) {
	c.mu.RLock()
	fresh := c.policies != nil && c.now().Sub(c.loadedAt) < c.ttl
	p := c.policies[action]
	c.mu.RUnlock()
	if fresh {
		return p, nil
	}

	v, err, _ := c.group.Do(policyCacheKey, func() (any, error) {
		return c.reload(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[ztDomain.Action]*ztDomain.Policy)[action], nil
}

func (c *policyCache) reload(ctx context.Context) (map[ztDomain.Action]*ztDomain.Policy, error) {
	list, err := c.repo.ListZTPolicies(ctx)
	if err != nil {
		return nil, err
	}
	policies := make(map[ztDomain.Action]*ztDomain.Policy, len(list))
	for _, p := range list {
		if p.Active {
			policies[p.Action] = p
		}
	}

	c.mu.Lock()
	c.policies = policies
	c.loadedAt = c.now()
	c.mu.Unlock()
	return policies, nil
}

func (c *policyCache) invalidate() {
	c.mu.Lock()
	c.policies = nil
	c.mu.Unlock()
}
