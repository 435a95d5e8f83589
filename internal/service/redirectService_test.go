package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerA = int64(1)
	ownerB = int64(2)

	publicIP = "203.0.113.10"
	proxyIP  = "198.51.100.66"
)

type resolverEnv struct {
	now time.Time

	links      *fakeLinkRepo
	clicks     *fakeClickRepo
	ips        *fakeIPRepo
	provider   *fakeProvider
	cache      *memCache
	dispatcher *syncDispatcher

	linkSvc  *LinkServiceImpl
	redirect *RedirectServiceImpl
	stats    *StatisticServiceImpl
}

func newResolverEnv(t *testing.T, loc *time.Location) *resolverEnv {
	t.Helper()

	env := &resolverEnv{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	env.links = newFakeLinkRepo(clock)
	env.ips = newFakeIPRepo()
	env.clicks = &fakeClickRepo{ips: env.ips}
	env.provider = &fakeProvider{proxies: map[string]bool{proxyIP: true}, country: "Germany"}
	env.cache = newMemCache()

	hasher := testHasher()
	ipSvc := NewIPService(env.ips, env.cache, env.provider, time.Second)
	env.dispatcher = &syncDispatcher{recorder: NewClickService(env.clicks, &noopProducer{})}

	env.linkSvc = NewLinkService(env.links, env.cache, hasher, clock, &LinkServiceConfig{
		BaseURL:         "http://sho.rt",
		ShortCodeLength: 8,
	})
	env.redirect = NewRedirectService(env.links, env.cache, ipSvc, env.dispatcher, hasher, clock, loc)
	env.stats = NewStatisticService(env.links, env.clicks, clock)
	return env
}

func (e *resolverEnv) create(t *testing.T, owner int64, req entity.CreateLinkRequest) *entity.LinkResponse {
	t.Helper()
	resp, err := e.linkSvc.Create(context.Background(), owner, req)
	require.NoError(t, err)
	return resp
}

func (e *resolverEnv) resolve(code, password, ip string) (string, error) {
	return e.redirect.Resolve(context.Background(), entity.ResolveRequest{
		ShortCode: code,
		Password:  password,
		IP:        netip.MustParseAddr(ip),
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	})
}

func assertAppError(t *testing.T, err error, kind entity.ErrorKind, msg string) {
	t.Helper()
	require.Error(t, err)
	var appErr *entity.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, kind, appErr.Kind)
	if msg != "" {
		assert.Equal(t, msg, appErr.Message)
	}
}

func tod(t *testing.T, s string) *entity.TimeOfDay {
	t.Helper()
	v, err := entity.ParseTimeOfDay(s)
	require.NoError(t, err)
	return &v
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

// TestResolveUnrestrictedLink тестирует, что ссылка без ограничений открывается с любого IP
func TestResolveUnrestrictedLink(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/docs"})

	for _, ip := range []string{publicIP, proxyIP, "127.0.0.1", "10.1.2.3", "::1", "2001:db8::7", "::ffff:192.168.1.5"} {
		t.Run(ip, func(t *testing.T) {
			target, err := env.resolve(link.ShortCode, "", ip)
			require.NoError(t, err)
			assert.Equal(t, "https://example.com/docs", target)
		})
	}
}

func TestResolveUnknownCode(t *testing.T) {
	env := newResolverEnv(t, time.UTC)

	_, err := env.resolve("nope", "", publicIP)
	assertAppError(t, err, entity.KindNotFound, "")
	assert.Zero(t, env.dispatcher.count())
}

// TestResolveConcreteScenario тестирует сценарий abc123 целиком
func TestResolveConcreteScenario(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	expires := env.now.Add(30 * 24 * time.Hour)

	env.create(t, ownerA, entity.CreateLinkRequest{
		URL:        "https://example.com",
		ShortCode:  "abc123",
		ExpiresAt:  &expires,
		AllowProxy: boolPtr(true),
	})

	target, err := env.resolve("abc123", "", publicIP)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)
	assert.Len(t, env.clicks.forURL(1), 1)

	_, err = env.linkSvc.Update(context.Background(), ownerA, "abc123", entity.UpdateLinkRequest{AllowProxy: boolPtr(false)})
	require.NoError(t, err)

	_, err = env.resolve("abc123", "", proxyIP)
	assertAppError(t, err, entity.KindForbidden, "proxy detected")
	assert.Len(t, env.clicks.forURL(1), 1, "denied resolution must not record a click")
}

func TestResolveExpiration(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	expires := env.now.Add(time.Hour)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/exp", ExpiresAt: &expires})

	tests := []struct {
		name string
		at   time.Time
		gone bool
	}{
		{"well before", expires.Add(-30 * time.Minute), false},
		{"just before", expires.Add(-time.Nanosecond), false},
		{"exactly at", expires, true},
		{"after", expires.Add(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.now = tt.at
			_, err := env.resolve(link.ShortCode, "", publicIP)
			if tt.gone {
				assertAppError(t, err, entity.KindGone, "link expired")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResolvePassword(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/secret", Password: "hunter2"})
	assert.True(t, link.HasPassword)

	_, err := env.resolve(link.ShortCode, "", publicIP)
	assertAppError(t, err, entity.KindUnauthorized, "password required")

	_, err = env.resolve(link.ShortCode, "wrong", publicIP)
	assertAppError(t, err, entity.KindUnauthorized, "invalid password")

	target, err := env.resolve(link.ShortCode, "hunter2", publicIP)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/secret", target)
	assert.Equal(t, 1, env.dispatcher.count())
}

func TestResolveCorrectPasswordProceedsToLaterChecks(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	expires := env.now.Add(time.Minute)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/p", Password: "pw", ExpiresAt: &expires})

	env.now = expires
	_, err := env.resolve(link.ShortCode, "pw", publicIP)
	assertAppError(t, err, entity.KindGone, "link expired")
}

// TestResolveProxyCheckedBeforePassword тестирует порядок проверок: прокси раньше пароля
func TestResolveProxyCheckedBeforePassword(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{
		URL:        "https://example.com/guarded",
		Password:   "pw",
		AllowProxy: boolPtr(false),
	})

	for _, pw := range []string{"", "wrong", "pw"} {
		_, err := env.resolve(link.ShortCode, pw, proxyIP)
		assertAppError(t, err, entity.KindForbidden, "proxy detected")
	}

	target, err := env.resolve(link.ShortCode, "pw", publicIP)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/guarded", target)
}

func TestResolveWindow(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{
		URL:        "https://example.com/office-hours",
		ValidFrom:  tod(t, "09:00"),
		ValidUntil: tod(t, "17:00"),
	})

	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		clock string
		kind  entity.ErrorKind
		msg   string
		ok    bool
	}{
		{clock: "08:59:59", kind: entity.KindForbidden, msg: "not yet allowed"},
		{clock: "09:00:00", ok: true},
		{clock: "12:30:00", ok: true},
		{clock: "17:00:00", ok: true},
		{clock: "17:00:01", kind: entity.KindForbidden, msg: "window closed"},
		{clock: "23:59:59", kind: entity.KindForbidden, msg: "window closed"},
	}

	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			env.now = day.Add(time.Duration(*tod(t, tt.clock)))
			_, err := env.resolve(link.ShortCode, "", publicIP)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assertAppError(t, err, tt.kind, tt.msg)
		})
	}
}

func TestResolveWindowUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	env := newResolverEnv(t, loc)
	link := env.create(t, ownerA, entity.CreateLinkRequest{
		URL:        "https://example.com/local",
		ValidFrom:  tod(t, "09:00"),
		ValidUntil: tod(t, "10:00"),
	})

	// 06:30 UTC is 09:30 in UTC+3.
	env.now = time.Date(2024, 6, 3, 6, 30, 0, 0, time.UTC)
	_, err := env.resolve(link.ShortCode, "", publicIP)
	assert.NoError(t, err)

	env.now = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	_, err = env.resolve(link.ShortCode, "", publicIP)
	assertAppError(t, err, entity.KindForbidden, "window closed")
}

func TestResolveEnrichmentFailure(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	env.provider.err = fmt.Errorf("dial tcp: i/o timeout")

	blocked := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/strict", AllowProxy: boolPtr(false)})
	open := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/open"})

	_, err := env.resolve(blocked.ShortCode, "", publicIP)
	assertAppError(t, err, entity.KindServiceUnavailable, "")

	target, err := env.resolve(open.ShortCode, "", publicIP)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/open", target)

	require.Equal(t, 1, env.dispatcher.count())
	assert.Nil(t, env.dispatcher.inputs[0].IPID)
	assert.Equal(t, publicIP, env.dispatcher.inputs[0].IP)
}

func TestResolveLocalCallerSkipsEnrichment(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	env.provider.err = fmt.Errorf("must not be called")
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/lan", AllowProxy: boolPtr(false)})

	for _, ip := range []string{"127.0.0.1", "192.168.0.10", "fe80::1", "::ffff:10.0.0.1"} {
		_, err := env.resolve(link.ShortCode, "", ip)
		assert.NoError(t, err, ip)
	}
	assert.Zero(t, env.provider.calls)
}

func TestResolveEnrichesOncePerAddress(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/once"})

	for i := 0; i < 3; i++ {
		_, err := env.resolve(link.ShortCode, "", publicIP)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, env.provider.calls)

	// A cold cache falls back to the stored record, not the provider.
	env.cache = newMemCache()
	ipSvc := NewIPService(env.ips, env.cache, env.provider, time.Second)
	rec, err := ipSvc.Lookup(context.Background(), netip.MustParseAddr(publicIP))
	require.NoError(t, err)
	assert.Equal(t, publicIP, rec.IPAddress)
	assert.Equal(t, 1, env.provider.calls)
}

func TestResolveUsesLinkCache(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/hot"})

	_, err := env.resolve(link.ShortCode, "", publicIP)
	require.NoError(t, err)
	fetches := env.links.fetches

	_, err = env.resolve(link.ShortCode, "", publicIP)
	require.NoError(t, err)
	assert.Equal(t, fetches, env.links.fetches)

	require.NoError(t, env.linkSvc.Delete(context.Background(), ownerA, link.ShortCode))
	_, err = env.resolve(link.ShortCode, "", publicIP)
	assertAppError(t, err, entity.KindNotFound, "")
}

// TestResolveDoesNotCacheRowReadBeforeUpdate тестирует гонку резолвера с изменением ссылки
func TestResolveDoesNotCacheRowReadBeforeUpdate(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/racy"})

	env.links.afterFetch = func() {
		env.links.afterFetch = nil
		_, err := env.linkSvc.Update(context.Background(), ownerA, link.ShortCode, entity.UpdateLinkRequest{Password: strPtr("secret")})
		require.NoError(t, err)
	}

	// The in-flight request still sees the row it read.
	_, err := env.resolve(link.ShortCode, "", publicIP)
	require.NoError(t, err)

	_, err = env.resolve(link.ShortCode, "", publicIP)
	assertAppError(t, err, entity.KindUnauthorized, "password required")

	target, err := env.resolve(link.ShortCode, "secret", publicIP)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/racy", target)
}

// TestGuestStatsCountsDistinctIPs тестирует total=N, unique=K
func TestGuestStatsCountsDistinctIPs(t *testing.T) {
	env := newResolverEnv(t, time.UTC)
	link := env.create(t, ownerA, entity.CreateLinkRequest{URL: "https://example.com/popular"})

	callers := []string{publicIP, publicIP, proxyIP, "127.0.0.1", publicIP, "127.0.0.1", "2001:db8::9"}
	for _, ip := range callers {
		_, err := env.resolve(link.ShortCode, "", ip)
		require.NoError(t, err)
	}

	guests, err := env.stats.Guests(context.Background(), ownerA, link.ShortCode, "")
	require.NoError(t, err)
	assert.Equal(t, int64(len(callers)), guests.Total)
	assert.Equal(t, int64(4), guests.Unique)
	assert.Equal(t, int64(1), guests.Proxy)

	countries, err := env.stats.Breakdown(context.Background(), ownerA, link.ShortCode, entity.DimensionCountry, "week")
	require.NoError(t, err)
	require.Len(t, countries, 2)
	assert.Equal(t, entity.DimensionStat{Value: "Germany", Total: 5, Unique: 3}, countries[0])
	assert.Equal(t, entity.DimensionStat{Value: entity.UnknownValue, Total: 2, Unique: 1}, countries[1])
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	addr, err := netip.ParseAddr(s)
	require.NoError(t, err)
	return addr
}
