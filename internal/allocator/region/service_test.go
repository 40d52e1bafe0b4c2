package region

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/chiquitav2/ipam/internal/allocator/addrspace"
	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	"github.com/chiquitav2/ipam/internal/allocator/events"
	"github.com/chiquitav2/ipam/internal/allocator/host"
	"github.com/chiquitav2/ipam/internal/allocator/locks"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/gookit/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	regions *Service
	hosts   *host.Service
	store   *db.SQLStore
	trail   *audit.Trail
}

func newFixture(t *testing.T, space *addrspace.Space, reclaim bool) *fixture {
	t.Helper()
	_, store := db.NewTestDB(t)
	scopes := locks.New()
	log := logger.NewNop()
	hosts := host.NewService(store, scopes, nil, log, host.Config{ReclaimReleased: true})
	return &fixture{
		regions: NewService(store, space, scopes, hosts, nil, log, Config{ReclaimRetired: reclaim}),
		hosts:   hosts,
		store:   store,
		trail:   audit.NewTrail(store, log),
	}
}

// tinySpace gives country "Tiny" the single octet 1 with only y 254 and
// 255 left unreserved.
func tinySpace(t *testing.T) *addrspace.Space {
	t.Helper()
	reserved := make([]addrspace.Block, 0, 254)
	for y := 0; y < 254; y++ {
		reserved = append(reserved, addrspace.Block{X: 1, Y: y})
	}
	space, err := addrspace.New([]addrspace.Country{
		{Name: "Tiny", Continent: "Test", XStart: 1, XEnd: 1},
		{Name: "Rest", Continent: "Test", XStart: 2, XEnd: 254, IsReserved: true},
	}, []int{0, 255}, reserved)
	require.NoError(t, err)
	return space
}

func (f *fixture) create(t *testing.T, country, name string) *Region {
	t.Helper()
	r, err := f.regions.Create(context.Background(), CreateRequest{Country: country, RegionName: name}, "alice")
	require.NoError(t, err)
	return r
}

func TestCreate_ScansLowestFreeBlock(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)

	first := f.create(t, "India", "Mumbai-DC1")
	assert.Equal(t, "10.50.0.0/24", first.CIDR)
	assert.Equal(t, 50, first.XOctet)
	assert.Equal(t, 0, first.YOctet)
	assert.Equal(t, StatusActive, first.Status)
	assert.Equal(t, "India", first.Country)

	second := f.create(t, "india", "Mumbai-DC2")
	assert.Equal(t, "10.50.1.0/24", second.CIDR)

	page, err := f.trail.Query(context.Background(), audit.Filter{ResourceType: audit.ResourceRegion})
	require.NoError(t, err)
	require.Len(t, page.Results, 2)
	entry := page.Results[1]
	assert.Equal(t, audit.ActionCreate, entry.ActionType)
	assert.Equal(t, "alice", entry.User)
	assert.Equal(t, "India", entry.ScopeID)
	assert.Equal(t, audit.Change{Field: "cidr", NewValue: "10.50.0.0/24"}, entry.Changes[1])
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()

	_, err := f.regions.Create(ctx, CreateRequest{Country: "Atlantis", RegionName: "dc"}, "alice")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	_, err = f.regions.Create(ctx, CreateRequest{Country: "Unassigned", RegionName: "dc"}, "alice")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	_, err = f.regions.Create(ctx, CreateRequest{Country: "India", RegionName: "   "}, "alice")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.regions.Create(ctx, CreateRequest{Country: "India", RegionName: string(long)}, "alice")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	count, err := f.store.CountRegions(ctx, db.CountRegionsParams{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreate_SkipsReservedBlocksAndExhausts(t *testing.T) {
	f := newFixture(t, tinySpace(t), true)

	assert.Equal(t, "10.1.254.0/24", f.create(t, "Tiny", "a").CIDR)
	assert.Equal(t, "10.1.255.0/24", f.create(t, "Tiny", "b").CIDR)

	_, err := f.regions.Create(context.Background(), CreateRequest{Country: "Tiny", RegionName: "c"}, "alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeCapacityExhausted))

	_, err = f.regions.PreviewNext(context.Background(), "Tiny")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeCapacityExhausted))
}

func TestReusePolicy(t *testing.T) {
	tests := []struct {
		name    string
		reclaim bool
		want    string
	}{
		{name: "reclaim retired", reclaim: true, want: "10.50.1.0/24"},
		{name: "burn retired", reclaim: false, want: "10.50.3.0/24"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, addrspace.Default(), tt.reclaim)
			ctx := context.Background()

			f.create(t, "India", "a")
			b := f.create(t, "India", "b")
			f.create(t, "India", "c")

			_, err := f.regions.Retire(ctx, b.ID, "consolidated", false, "alice")
			require.NoError(t, err)

			next, err := f.regions.PreviewNext(ctx, "India")
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.CIDR)

			assert.Equal(t, tt.want, f.create(t, "India", "d").CIDR)
		})
	}
}

func TestRetire_Cascade(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()

	r := f.create(t, "India", "Mumbai-DC1")
	_, err := f.hosts.BatchCreate(ctx, r.ID, host.BatchRequest{Count: 3, HostnamePrefix: "web"}, "alice")
	require.NoError(t, err)

	result, err := f.regions.Retire(ctx, r.ID, "datacenter closed", true, "bob")
	require.NoError(t, err)
	assert.True(t, result.Cascade)
	assert.Equal(t, 3, result.HostsReleased)
	assert.Zero(t, result.OrphanedHosts)
	assert.Equal(t, StatusRetired, result.Region.Status)
	assert.NotNil(t, result.Region.RetiredAt)
	assert.Zero(t, result.Region.AllocatedHosts)

	active, err := f.store.CountActiveHostsInRegion(ctx, r.ID)
	require.NoError(t, err)
	assert.Zero(t, active)

	releases, err := f.trail.Query(ctx, audit.Filter{ActionType: audit.ActionRelease})
	require.NoError(t, err)
	assert.Equal(t, int64(3), releases.Pagination.Total)
	for _, e := range releases.Results {
		assert.Equal(t, "datacenter closed", e.Reason)
		assert.Equal(t, "bob", e.User)
		assert.Equal(t, "true", e.Metadata["cascade"])
	}

	retires, err := f.trail.Query(ctx, audit.Filter{ActionType: audit.ActionRetire})
	require.NoError(t, err)
	require.Len(t, retires.Results, 1)
	assert.Equal(t, map[string]string{
		"cascade":        "true",
		"hosts_released": "3",
		"orphaned_hosts": "0",
		"cidr":           "10.50.0.0/24",
	}, retires.Results[0].Metadata)
}

func TestRetire_WithoutCascadeOrphansHosts(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()

	r := f.create(t, "India", "Mumbai-DC1")
	_, err := f.hosts.BatchCreate(ctx, r.ID, host.BatchRequest{Count: 2, HostnamePrefix: "web"}, "alice")
	require.NoError(t, err)

	result, err := f.regions.Retire(ctx, r.ID, "moving", false, "bob")
	require.NoError(t, err)
	assert.False(t, result.Cascade)
	assert.Zero(t, result.HostsReleased)
	assert.Equal(t, 2, result.OrphanedHosts)

	active, err := f.store.CountActiveHostsInRegion(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	_, err = f.hosts.Create(ctx, r.ID, host.CreateRequest{Hostname: "late"}, "alice")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeRegionInactive))
}

func TestRetire_WithoutCascadeKeepsBlockUntilHostsReleased(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()

	old := f.create(t, "India", "Mumbai-DC1")
	orphan, err := f.hosts.Create(ctx, old.ID, host.CreateRequest{Hostname: "web-01"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10.50.0.1", orphan.IPAddress)

	_, err = f.regions.Retire(ctx, old.ID, "moving", false, "bob")
	require.NoError(t, err)

	// the orphan still holds 10.50.0.1, so its /24 is not reclaimed yet
	replacement := f.create(t, "India", "Mumbai-DC2")
	assert.Equal(t, "10.50.1.0/24", replacement.CIDR)

	h, err := f.hosts.Create(ctx, replacement.ID, host.CreateRequest{Hostname: "web-02"}, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, orphan.IPAddress, h.IPAddress)

	_, err = f.hosts.Release(ctx, orphan.ID, "decommissioned", "bob")
	require.NoError(t, err)

	next, err := f.regions.PreviewNext(ctx, "India")
	require.NoError(t, err)
	assert.Equal(t, "10.50.0.0/24", next.CIDR)
	assert.Equal(t, "10.50.0.0/24", f.create(t, "India", "Mumbai-DC3").CIDR)
}

func TestRetire_Errors(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()
	r := f.create(t, "India", "Mumbai-DC1")

	_, err := f.regions.Retire(ctx, r.ID, " ", false, "bob")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	_, err = f.regions.Retire(ctx, "missing", "closing", false, "bob")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	_, err = f.regions.Retire(ctx, r.ID, "closing", false, "bob")
	require.NoError(t, err)
	_, err = f.regions.Retire(ctx, r.ID, "closing again", false, "bob")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeInvalidState))
}

type failingReleaser struct {
	inner HostReleaser
}

func (f failingReleaser) ReleaseRegionHosts(ctx context.Context, q *db.Queries, region db.Region, reason, actor string) ([]db.Host, error) {
	if _, err := f.inner.ReleaseRegionHosts(ctx, q, region, reason, actor); err != nil {
		return nil, err
	}
	return nil, errors.New("disk full")
}

func (f failingReleaser) NotifyReleased(context.Context, []db.Host, string, string) {}

func TestRetire_CascadeFailureRollsBackEverything(t *testing.T) {
	_, store := db.NewTestDB(t)
	scopes := locks.New()
	log := logger.NewNop()
	hosts := host.NewService(store, scopes, nil, log, host.Config{ReclaimReleased: true})
	regions := NewService(store, addrspace.Default(), scopes, failingReleaser{inner: hosts}, nil, log, Config{ReclaimRetired: true})
	ctx := context.Background()

	r, err := regions.Create(ctx, CreateRequest{Country: "India", RegionName: "dc"}, "alice")
	require.NoError(t, err)
	_, err = hosts.BatchCreate(ctx, r.ID, host.BatchRequest{Count: 2, HostnamePrefix: "web"}, "alice")
	require.NoError(t, err)

	_, err = regions.Retire(ctx, r.ID, "closing", true, "bob")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodePersistence))

	got, err := regions.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, 2, got.AllocatedHosts)

	active, err := store.CountActiveHostsInRegion(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)

	n, err := store.CountAuditEntries(ctx, db.CountAuditEntriesParams{ActionType: "release"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()
	r := f.create(t, "India", "Mumbai-DC1")

	name, owner := "Mumbai-Primary", ""
	updated, err := f.regions.Update(ctx, r.ID, UpdateRequest{RegionName: &name, Owner: &owner}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Mumbai-Primary", updated.RegionName)

	page, err := f.trail.Query(ctx, audit.Filter{ActionType: audit.ActionUpdate})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, []audit.Change{{Field: "region_name", OldValue: "Mumbai-DC1", NewValue: "Mumbai-Primary"}}, page.Results[0].Changes)

	_, err = f.regions.Update(ctx, r.ID, UpdateRequest{RegionName: &name}, "bob")
	require.NoError(t, err)
	page, err = f.trail.Query(ctx, audit.Filter{ActionType: audit.ActionUpdate})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total, "no-op update writes no audit entry")

	_, err = f.regions.Update(ctx, r.ID, UpdateRequest{}, "bob")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	blank := " "
	_, err = f.regions.Update(ctx, r.ID, UpdateRequest{RegionName: &blank}, "bob")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	_, err = f.regions.Retire(ctx, r.ID, "closing", false, "bob")
	require.NoError(t, err)
	_, err = f.regions.Update(ctx, r.ID, UpdateRequest{RegionName: &name}, "bob")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeInvalidState))
}

func TestUtilization(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()
	r := f.create(t, "India", "Mumbai-DC1")

	_, err := f.hosts.BatchCreate(ctx, r.ID, host.BatchRequest{Count: 2, HostnamePrefix: "web"}, "alice")
	require.NoError(t, err)

	u, err := f.regions.Utilization(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, Utilization{RegionID: r.ID, CIDR: "10.50.0.0/24", Allocated: 2, Total: 254, Available: 252, Percentage: 0.79}, *u)

	_, err = f.regions.Utilization(ctx, "missing")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))

	full := Compute(db.Region{ID: "x"}, 254)
	assert.Equal(t, 100.0, full.Percentage)
	assert.Zero(t, full.Available)
}

func TestCreate_ConcurrentCallersGetDistinctBlocks(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)

	const n = 10
	var g errgroup.Group
	cidrs := make([]string, n)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := f.regions.Create(context.Background(), CreateRequest{Country: "India", RegionName: fmt.Sprintf("dc-%d", i)}, "alice")
			if err == nil {
				cidrs[i] = r.CIDR
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("10.50.%d.0/24", i)
	}
	assert.ElementsMatch(t, want, cidrs)
}

func TestListAndGet(t *testing.T) {
	f := newFixture(t, addrspace.Default(), true)
	ctx := context.Background()

	a := f.create(t, "India", "a")
	f.create(t, "India", "b")
	f.create(t, "United States", "c")
	_, err := f.regions.Retire(ctx, a.ID, "closing", false, "bob")
	require.NoError(t, err)

	page, err := f.regions.List(ctx, Filter{Country: "india"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Pagination.Total)

	page, err = f.regions.List(ctx, Filter{Status: StatusActive})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Pagination.Total)

	_, err = f.regions.List(ctx, Filter{Status: "gone"})
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	got, err := f.regions.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRetired, got.Status)

	_, err = f.regions.Get(ctx, "missing")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))
}

func TestPublishFailureIsLoggedWithCallerContext(t *testing.T) {
	_, store := db.NewTestDB(t)
	bus := events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	bus.SubscribeRegionEvents(event.ListenerFunc(func(e event.Event) error {
		return errors.New("listener down")
	}))

	var buf strings.Builder
	log := logger.New(logger.LoggerConfig{Level: logger.LevelWarn, Format: logger.FormatJSON, Output: &buf})
	scopes := locks.New()
	hosts := host.NewService(store, scopes, bus, log, host.Config{ReclaimReleased: true})
	regions := NewService(store, addrspace.Default(), scopes, hosts, bus, log, Config{ReclaimRetired: true})

	ctx := logger.WithRequestID(context.Background(), "req-7")
	r, err := regions.Create(ctx, CreateRequest{Country: "India", RegionName: "Mumbai-DC1"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10.50.0.0/24", r.CIDR)

	out := buf.String()
	assert.Contains(t, out, "failed to publish region event")
	assert.Contains(t, out, `"request_id":"req-7"`)
	assert.Contains(t, out, r.ID)
}
