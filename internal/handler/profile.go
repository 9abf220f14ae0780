package handler

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jun/brickmap/internal/auth"
	"github.com/jun/brickmap/internal/records"
	"github.com/jun/brickmap/internal/resolver"
)

const (
	// DefaultProfileLimit bounds how many profiles a warm instance keeps.
	DefaultProfileLimit = 1024
	// DefaultProfileIdle is how long an unused profile is kept.
	DefaultProfileIdle = time.Hour
)

// Profile bundles the session, discovery and record components of one
// browser profile.
type Profile struct {
	ID       string
	Manager  *auth.Manager
	Resolver *resolver.Resolver
	Records  *records.Store
}

// Profiles builds a Profile per profile ID on first use. Profiles are kept
// in an LRU and dropped after being idle; a dropped profile is rebuilt from
// its store on the next request.
type Profiles struct {
	provider     *auth.Provider
	resourceName string

	mu    sync.Mutex
	cache *expirable.LRU[string, *Profile]
}

func NewProfiles(provider *auth.Provider, resourceName string) *Profiles {
	return NewProfilesWithLimit(provider, resourceName, DefaultProfileLimit, DefaultProfileIdle)
}

// NewProfilesWithLimit keeps at most size profiles, each for idle after its
// last use.
func NewProfilesWithLimit(provider *auth.Provider, resourceName string, size int, idle time.Duration) *Profiles {
	return &Profiles{
		provider:     provider,
		resourceName: resourceName,
		cache:        expirable.NewLRU[string, *Profile](size, nil, idle),
	}
}

// Get returns the Profile of id.
func (p *Profiles) Get(id string) *Profile {
	p.mu.Lock()
	defer p.mu.Unlock()

	prof, ok := p.cache.Get(id)
	if !ok {
		m := p.provider.Manager(id)
		res := resolver.New(m, m.Store(), p.resourceName, records.Partitions())
		prof = &Profile{
			ID:       id,
			Manager:  m,
			Resolver: res,
			Records:  records.NewStore(res, m),
		}
	}
	// Add also pushes the expiry back.
	p.cache.Add(id, prof)
	return prof
}

// Len returns how many profiles are cached.
func (p *Profiles) Len() int {
	return p.cache.Len()
}
