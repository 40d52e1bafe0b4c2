package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// NewTestDB creates an isolated in-memory SQLite database for one test.
func NewTestDB(t *testing.T) (*sql.DB, *SQLStore) {
	t.Helper()

	// A unique name per test keeps shared-cache databases apart.
	name := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := sql.Open("sqlite3", dsn(name))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// One connection: every transaction is serialized and the in-memory
	// database lives as long as the pool.
	db.SetMaxOpenConns(1)

	store := NewStoreFromDB(db)
	if err := store.Setup(context.Background()); err != nil {
		db.Close()
		t.Fatalf("failed to setup test database schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, store
}

// SeedRegion inserts an active region directly, bypassing the allocator.
func SeedRegion(t *testing.T, store Store, country string, x, y int64) Region {
	t.Helper()

	region, err := store.CreateRegion(context.Background(), CreateRegionParams{
		ID:         uuid.NewString(),
		Country:    country,
		XOctet:     x,
		YOctet:     y,
		Cidr:       fmt.Sprintf("10.%d.%d.0/24", x, y),
		RegionName: fmt.Sprintf("seed-%d-%d", x, y),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed region: %v", err)
	}
	return region
}

// SeedHost inserts an active host directly and bumps the region counter.
func SeedHost(t *testing.T, store Store, region Region, z int64, hostname string) Host {
	t.Helper()

	ctx := context.Background()
	var host Host
	err := store.ExecTx(ctx, func(q *Queries) error {
		var err error
		host, err = q.CreateHost(ctx, CreateHostParams{
			ID:        uuid.NewString(),
			RegionID:  region.ID,
			XOctet:    region.XOctet,
			YOctet:    region.YOctet,
			ZOctet:    z,
			IpAddress: fmt.Sprintf("10.%d.%d.%d", region.XOctet, region.YOctet, z),
			Hostname:  hostname,
			Tags:      "[]",
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		_, err = q.AdjustRegionHosts(ctx, AdjustRegionHostsParams{Delta: 1, UpdatedAt: time.Now().UTC(), ID: region.ID})
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed host: %v", err)
	}
	return host
}
