package service

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/pkg/security"
	"golang.org/x/crypto/bcrypt"
)

func testHasher() PasswordHasher {
	return security.NewPasswordHasher(bcrypt.MinCost)
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// fakeLinkRepo enforces the same unique constraints as the urls table.
type fakeLinkRepo struct {
	mu     sync.Mutex
	nextID int64
	links  map[string]*entity.Link
	clock  Clock
	// fetches counts FetchByShortCode calls.
	fetches int
	// afterFetch runs once the row is read, outside the lock.
	afterFetch func()
}

func newFakeLinkRepo(clock Clock) *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*entity.Link), clock: clock}
}

func (r *fakeLinkRepo) Exists(_ context.Context, shortCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.links[shortCode]
	return ok, nil
}

func (r *fakeLinkRepo) ExistsForOwner(_ context.Context, userID int64, originalURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.UserID == userID && l.OriginalURL == originalURL {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLinkRepo) Create(_ context.Context, link *entity.Link) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[link.ShortCode]; ok {
		return 0, fmt.Errorf("create link: %w", entity.ErrShortCodeTaken)
	}
	for _, l := range r.links {
		if l.UserID == link.UserID && l.OriginalURL == link.OriginalURL {
			return 0, fmt.Errorf("create link: %w", entity.ErrDuplicateURL)
		}
	}
	r.nextID++
	link.ID = r.nextID
	link.CreatedAt = r.clock()
	stored := *link
	r.links[link.ShortCode] = &stored
	return link.ID, nil
}

func (r *fakeLinkRepo) FetchByShortCode(_ context.Context, shortCode string, _ ...entity.LinkField) (*entity.Link, error) {
	r.mu.Lock()
	r.fetches++
	l, ok := r.links[shortCode]
	var copied entity.Link
	if ok {
		copied = *l
	}
	hook := r.afterFetch
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &copied, nil
}

func (r *fakeLinkRepo) ListByOwner(_ context.Context, userID int64) ([]entity.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	links := []entity.Link{}
	for _, l := range r.links {
		if l.UserID == userID {
			links = append(links, *l)
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].ID > links[j].ID })
	return links, nil
}

func (r *fakeLinkRepo) DeleteByShortCode(_ context.Context, shortCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[shortCode]; !ok {
		return entity.ErrNotFound
	}
	delete(r.links, shortCode)
	return nil
}

func (r *fakeLinkRepo) DeleteAllByOwner(_ context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for code, l := range r.links {
		if l.UserID == userID {
			delete(r.links, code)
			n++
		}
	}
	return n, nil
}

func (r *fakeLinkRepo) UpdateFields(_ context.Context, shortCode string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[shortCode]
	if !ok {
		return entity.ErrNotFound
	}
	updated := *l
	for k, v := range fields {
		switch k {
		case entity.UpdateOriginalURL:
			updated.OriginalURL = v.(string)
		case entity.UpdateShortCode:
			code := v.(string)
			if _, taken := r.links[code]; taken {
				return fmt.Errorf("update link: %w", entity.ErrShortCodeTaken)
			}
			updated.ShortCode = code
		case entity.UpdatePassword:
			if v == nil {
				updated.Password = nil
			} else {
				hash := v.(string)
				updated.Password = &hash
			}
		case entity.UpdateValidFrom:
			updated.ValidFrom = todOrNil(v)
		case entity.UpdateValidUntil:
			updated.ValidUntil = todOrNil(v)
		case entity.UpdateExpiresAt:
			if v == nil {
				updated.ExpiresAt = nil
			} else {
				t := v.(time.Time)
				updated.ExpiresAt = &t
			}
		case entity.UpdateAllowProxy:
			updated.AllowProxy = v.(bool)
		}
	}
	delete(r.links, shortCode)
	r.links[updated.ShortCode] = &updated
	return nil
}

func todOrNil(v any) *entity.TimeOfDay {
	if v == nil {
		return nil
	}
	t := v.(entity.TimeOfDay)
	return &t
}

// fakeClickRepo aggregates in memory the way the SQL does.
type fakeClickRepo struct {
	mu     sync.Mutex
	clicks []entity.Click
	ips    *fakeIPRepo
	err    error
}

func (r *fakeClickRepo) Add(_ context.Context, click *entity.Click) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	click.ID = int64(len(r.clicks) + 1)
	click.ClickedAt = time.Now()
	r.clicks = append(r.clicks, *click)
	return click.ID, nil
}

func (r *fakeClickRepo) forURL(urlID int64) []entity.Click {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Click
	for _, c := range r.clicks {
		if c.URLID == urlID {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeClickRepo) FieldStats(_ context.Context, urlID int64, dimension entity.StatDimension, _ *time.Time) (entity.Breakdown, error) {
	totals := map[string]int64{}
	uniques := map[string]map[string]bool{}
	for _, c := range r.forURL(urlID) {
		var v string
		switch dimension {
		case entity.DimensionBrowser:
			v = c.Browser
		case entity.DimensionOS:
			v = c.OS
		case entity.DimensionDevice:
			v = c.Device
		case entity.DimensionCountry:
			if c.IPID != nil && r.ips != nil {
				if rec := r.ips.byID(*c.IPID); rec != nil && rec.Country != nil {
					v = *rec.Country
				}
			}
		}
		if v == "" {
			v = entity.UnknownValue
		}
		totals[v]++
		if uniques[v] == nil {
			uniques[v] = map[string]bool{}
		}
		if c.IPAddress != nil {
			uniques[v][*c.IPAddress] = true
		}
	}

	rows := entity.Breakdown{}
	for v, total := range totals {
		rows = append(rows, entity.DimensionStat{Value: v, Total: total, Unique: int64(len(uniques[v]))})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].Value < rows[j].Value
	})
	return rows, nil
}

func (r *fakeClickRepo) GuestStats(_ context.Context, urlID int64, _ *time.Time) (*entity.GuestStats, error) {
	stats := &entity.GuestStats{}
	unique := map[string]bool{}
	proxy := map[string]bool{}
	for _, c := range r.forURL(urlID) {
		stats.Total++
		if c.IPAddress == nil {
			continue
		}
		unique[*c.IPAddress] = true
		if c.IPID != nil && r.ips != nil {
			if rec := r.ips.byID(*c.IPID); rec != nil && rec.IsProxy {
				proxy[*c.IPAddress] = true
			}
		}
	}
	stats.Unique = int64(len(unique))
	stats.Proxy = int64(len(proxy))
	return stats, nil
}

type fakeIPRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*entity.IPRecord
}

func newFakeIPRepo() *fakeIPRepo {
	return &fakeIPRepo{records: make(map[string]*entity.IPRecord)}
}

func (r *fakeIPRepo) FetchByAddress(_ context.Context, ip string) (*entity.IPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[ip]
	if !ok {
		return nil, entity.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeIPRepo) Add(_ context.Context, record *entity.IPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.IPAddress]; ok {
		return nil
	}
	r.nextID++
	stored := *record
	stored.ID = r.nextID
	r.records[record.IPAddress] = &stored
	return nil
}

func (r *fakeIPRepo) byID(id int64) *entity.IPRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// fakeProvider flags every address listed in proxies.
type fakeProvider struct {
	mu      sync.Mutex
	proxies map[string]bool
	country string
	err     error
	calls   int
}

func (p *fakeProvider) Lookup(_ context.Context, ip netip.Addr) (*entity.IPRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	rec := &entity.IPRecord{IPAddress: ip.String(), IsProxy: p.proxies[ip.String()]}
	if p.country != "" {
		country := p.country
		rec.Country = &country
	}
	return rec, nil
}

// memCache is an in-process CacheRepository. Like the Redis cache it keeps
// invalidated link keys as tombstones and never overwrites a key.
type memCache struct {
	mu         sync.Mutex
	links      map[string]entity.Link
	tombstones map[string]bool
	ips        map[string]entity.IPRecord
}

func newMemCache() *memCache {
	return &memCache{
		links:      map[string]entity.Link{},
		tombstones: map[string]bool{},
		ips:        map[string]entity.IPRecord{},
	}
}

func (c *memCache) GetLink(_ context.Context, shortCode string) (*entity.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.links[shortCode]
	if !ok {
		return nil, entity.ErrCacheMiss
	}
	return &l, nil
}

func (c *memCache) SetLink(_ context.Context, link *entity.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.links[link.ShortCode]; ok || c.tombstones[link.ShortCode] {
		return nil
	}
	c.links[link.ShortCode] = *link
	return nil
}

func (c *memCache) DeleteLink(_ context.Context, shortCodes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range shortCodes {
		delete(c.links, code)
		c.tombstones[code] = true
	}
	return nil
}

func (c *memCache) GetIP(_ context.Context, ip string) (*entity.IPRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.ips[ip]
	if !ok {
		return nil, entity.ErrCacheMiss
	}
	return &rec, nil
}

func (c *memCache) SetIP(_ context.Context, record *entity.IPRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ips[record.IPAddress] = *record
	return nil
}

// syncDispatcher records clicks inline so tests can assert on them.
type syncDispatcher struct {
	mu       sync.Mutex
	recorder ClickRecorder
	inputs   []entity.ClickInput
}

func (d *syncDispatcher) Dispatch(in entity.ClickInput) bool {
	d.mu.Lock()
	d.inputs = append(d.inputs, in)
	d.mu.Unlock()
	if d.recorder != nil {
		_ = d.recorder.RecordClick(context.Background(), in)
	}
	return true
}

func (d *syncDispatcher) Close(context.Context) error { return nil }

func (d *syncDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*entity.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*entity.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *entity.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return 0, fmt.Errorf("create user: %w", entity.ErrEmailTaken)
	}
	r.nextID++
	user.ID = r.nextID
	stored := *user
	r.users[user.Email] = &stored
	return user.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, entity.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

type fakeAPIKeyRepo struct {
	mu     sync.Mutex
	byUser map[int64]entity.APIKey
}

func newFakeAPIKeyRepo() *fakeAPIKeyRepo {
	return &fakeAPIKeyRepo{byUser: map[int64]entity.APIKey{}}
}

func (r *fakeAPIKeyRepo) Upsert(_ context.Context, key *entity.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key.IsActive = true
	r.byUser[key.UserID] = *key
	return nil
}

func (r *fakeAPIKeyRepo) Validate(_ context.Context, keyHash string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.byUser {
		if k.KeyHash == keyHash && k.IsActive && k.ExpiresAt.After(now) {
			return k.UserID, nil
		}
	}
	return 0, entity.ErrNotFound
}

func (r *fakeAPIKeyRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, k := range r.byUser {
		if k.IsActive && !k.ExpiresAt.After(now) {
			k.IsActive = false
			r.byUser[id] = k
			n++
		}
	}
	return n, nil
}

// noopProducer satisfies kafka.Producer.
type noopProducer struct {
	mu     sync.Mutex
	events []any
}

func (p *noopProducer) Publish(_ context.Context, _ int64, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *noopProducer) Close() error { return nil }
