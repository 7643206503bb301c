// Package reconcile maintains dimension state across an entire pipeline run.
// Actors, repositories and organizations are slowly changing: the cache
// tracks the earliest and latest time each entity was observed while keeping
// the most recent descriptive attributes.
package reconcile

import (
	"regexp"
	"sync"

	"github.com/gharvest/gharvest/pkg/types"
)

// botPattern matches account names that belong to automation rather than
// people. Matching is case-insensitive.
var botPattern = regexp.MustCompile(`(?i)(-bot|[._]bot|bot[._]|^bot-|^bot$|\[bot\]$)`)

// IsBot reports whether a login names an automated account.
func IsBot(login string) bool {
	if login == "" {
		return false
	}
	return botPattern.MatchString(login)
}

// ActorState is the reconciled view of one actor.
type ActorState struct {
	ID           int64
	Login        string
	DisplayLogin string
	URL          string
	AvatarURL    string
	GravatarID   string
	IsBot        bool
	FirstSeenAt  string
	LastSeenAt   string
}

// RepoState is the reconciled view of one repository.
type RepoState struct {
	ID          int64
	Name        string
	URL         string
	OwnerLogin  string
	FirstSeenAt string
	LastSeenAt  string
}

// OrgState is the reconciled view of one organization.
type OrgState struct {
	ID          int64
	Login       string
	URL         string
	AvatarURL   string
	FirstSeenAt string
	LastSeenAt  string
}

// Cache accumulates dimension state for a run. It is safe for concurrent
// use by the workers that process partitions in parallel.
type Cache struct {
	mu      sync.Mutex
	actors  map[int64]*ActorState
	repos   map[int64]*RepoState
	orgs    map[int64]*OrgState
	dropped int64
}

// NewCache returns an empty dimension cache.
func NewCache() *Cache {
	return &Cache{
		actors: make(map[int64]*ActorState),
		repos:  make(map[int64]*RepoState),
		orgs:   make(map[int64]*OrgState),
	}
}

// MergeActor folds one observation of an actor into the cache. The earliest
// first-seen timestamp is preserved, the last-seen timestamp advances, and
// descriptive attributes take the value from the most recent observation.
// Observations without an id are counted and dropped.
func (c *Cache) MergeActor(a *types.Actor, seenAt string) {
	if a == nil {
		return
	}
	if a.ID == 0 {
		c.drop()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.actors[a.ID]
	if !ok {
		st = &ActorState{ID: a.ID, FirstSeenAt: seenAt}
		c.actors[a.ID] = st
	}
	if seenAt != "" && (st.FirstSeenAt == "" || seenAt < st.FirstSeenAt) {
		st.FirstSeenAt = seenAt
	}
	if seenAt > st.LastSeenAt {
		st.LastSeenAt = seenAt
	}
	st.Login = a.Login
	st.DisplayLogin = a.DisplayLogin
	st.URL = a.URL
	st.AvatarURL = a.AvatarURL
	st.GravatarID = a.GravatarID
	st.IsBot = IsBot(a.Login)
}

// MergeRepo folds one observation of a repository into the cache.
func (c *Cache) MergeRepo(r *types.Repo, seenAt string) {
	if r == nil {
		return
	}
	if r.ID == 0 {
		c.drop()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.repos[r.ID]
	if !ok {
		st = &RepoState{ID: r.ID, FirstSeenAt: seenAt}
		c.repos[r.ID] = st
	}
	if seenAt != "" && (st.FirstSeenAt == "" || seenAt < st.FirstSeenAt) {
		st.FirstSeenAt = seenAt
	}
	if seenAt > st.LastSeenAt {
		st.LastSeenAt = seenAt
	}
	st.Name = r.Name
	st.URL = r.URL
	st.OwnerLogin = r.OwnerLogin()
}

// MergeOrg folds one observation of an organization into the cache.
func (c *Cache) MergeOrg(o *types.Org, seenAt string) {
	if o == nil {
		return
	}
	if o.ID == 0 {
		c.drop()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.orgs[o.ID]
	if !ok {
		st = &OrgState{ID: o.ID, FirstSeenAt: seenAt}
		c.orgs[o.ID] = st
	}
	if seenAt != "" && (st.FirstSeenAt == "" || seenAt < st.FirstSeenAt) {
		st.FirstSeenAt = seenAt
	}
	if seenAt > st.LastSeenAt {
		st.LastSeenAt = seenAt
	}
	st.Login = o.Login
	st.URL = o.URL
	st.AvatarURL = o.AvatarURL
}

// SeedActor installs dimension state recovered from a prior run without
// advancing last-seen or overwriting attributes observed this run.
func (c *Cache) SeedActor(st ActorState) {
	if st.ID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.actors[st.ID]; ok {
		if st.FirstSeenAt != "" && (existing.FirstSeenAt == "" || st.FirstSeenAt < existing.FirstSeenAt) {
			existing.FirstSeenAt = st.FirstSeenAt
		}
		return
	}
	cp := st
	c.actors[st.ID] = &cp
}

// SeedRepo installs repository state recovered from a prior run.
func (c *Cache) SeedRepo(st RepoState) {
	if st.ID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.repos[st.ID]; ok {
		if st.FirstSeenAt != "" && (existing.FirstSeenAt == "" || st.FirstSeenAt < existing.FirstSeenAt) {
			existing.FirstSeenAt = st.FirstSeenAt
		}
		return
	}
	cp := st
	c.repos[st.ID] = &cp
}

// SeedOrg installs organization state recovered from a prior run.
func (c *Cache) SeedOrg(st OrgState) {
	if st.ID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.orgs[st.ID]; ok {
		if st.FirstSeenAt != "" && (existing.FirstSeenAt == "" || st.FirstSeenAt < existing.FirstSeenAt) {
			existing.FirstSeenAt = st.FirstSeenAt
		}
		return
	}
	cp := st
	c.orgs[st.ID] = &cp
}

// Actors returns a snapshot of all reconciled actor states.
func (c *Cache) Actors() []ActorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActorState, 0, len(c.actors))
	for _, st := range c.actors {
		out = append(out, *st)
	}
	return out
}

// Repos returns a snapshot of all reconciled repository states.
func (c *Cache) Repos() []RepoState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RepoState, 0, len(c.repos))
	for _, st := range c.repos {
		out = append(out, *st)
	}
	return out
}

// Orgs returns a snapshot of all reconciled organization states.
func (c *Cache) Orgs() []OrgState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]OrgState, 0, len(c.orgs))
	for _, st := range c.orgs {
		out = append(out, *st)
	}
	return out
}

// Dropped returns the number of observations discarded for missing an id.
func (c *Cache) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Cache) drop() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}
