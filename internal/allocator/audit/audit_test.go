package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/db"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/chiquitav2/ipam/internal/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, store db.Store, e Entry) Entry {
	t.Helper()
	var out Entry
	err := store.ExecTx(context.Background(), func(q *db.Queries) error {
		var err error
		out, err = Record(context.Background(), q, e)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestRecord_PersistsChangesInOrder(t *testing.T) {
	_, store := db.NewTestDB(t)
	trail := NewTrail(store, logger.NewNop())

	var changes Changes
	changes.Set("region_name", "", "Mumbai-DC1")
	changes.Set("cidr", "", "10.50.0.0/24")
	changes.Track("owner", "ops", "ops") // unchanged, dropped

	e := record(t, store, Entry{
		ActionType:   ActionCreate,
		ResourceType: ResourceRegion,
		ResourceID:   "r1",
		ResourceName: "Mumbai-DC1",
		ScopeID:      "India",
		User:         "alice",
		Changes:      changes,
		Metadata:     map[string]string{"country": "India"},
	})
	assert.NotEmpty(t, e.ID)
	assert.Positive(t, e.Seq)
	assert.False(t, e.Timestamp.IsZero())

	got, err := trail.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, got.ActionType)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "India", got.Metadata["country"])
	require.Len(t, got.Changes, 2)
	assert.Equal(t, Change{Field: "region_name", NewValue: "Mumbai-DC1"}, got.Changes[0])
	assert.Equal(t, "cidr", got.Changes[1].Field)
}

func TestRecord_Validation(t *testing.T) {
	_, store := db.NewTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry Entry
		field string
	}{
		{name: "unknown action", entry: Entry{ActionType: "delete", ResourceType: ResourceHost, ResourceID: "h"}, field: "action_type"},
		{name: "unknown resource", entry: Entry{ActionType: ActionCreate, ResourceType: "subnet", ResourceID: "h"}, field: "resource_type"},
		{name: "missing id", entry: Entry{ActionType: ActionCreate, ResourceType: ResourceHost}, field: "resource_id"},
		{name: "release without reason", entry: Entry{ActionType: ActionRelease, ResourceType: ResourceHost, ResourceID: "h", Reason: "  "}, field: "reason"},
		{name: "retire without reason", entry: Entry{ActionType: ActionRetire, ResourceType: ResourceRegion, ResourceID: "r"}, field: "reason"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ExecTx(ctx, func(q *db.Queries) error {
				_, err := Record(ctx, q, tt.entry)
				return err
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))
			de, ok := apperrors.AsDomainError(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, de.Metadata()["field"])
		})
	}

	count, err := store.CountAuditEntries(ctx, db.CountAuditEntriesParams{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecord_DefaultsUser(t *testing.T) {
	_, store := db.NewTestDB(t)

	e := record(t, store, Entry{ActionType: ActionUpdate, ResourceType: ResourceHost, ResourceID: "h1"})
	assert.Equal(t, SystemUser, e.User)
	assert.NotNil(t, e.Changes)
}

func TestRecord_RollsBackWithCaller(t *testing.T) {
	_, store := db.NewTestDB(t)
	ctx := context.Background()

	boom := errors.New("state change failed")
	err := store.ExecTx(ctx, func(q *db.Queries) error {
		if _, err := Record(ctx, q, Entry{ActionType: ActionCreate, ResourceType: ResourceHost, ResourceID: "h1", User: "bob"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	page, err := NewTrail(store, logger.NewNop()).Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Zero(t, page.Pagination.Total)
}

func TestQuery_FiltersAndPaginates(t *testing.T) {
	_, store := db.NewTestDB(t)
	trail := NewTrail(store, logger.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		user := "alice"
		if i%5 == 0 {
			user = "bob"
		}
		record(t, store, Entry{
			ActionType:   ActionCreate,
			ResourceType: ResourceHost,
			ResourceID:   "h",
			User:         user,
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
		})
	}
	record(t, store, Entry{ActionType: ActionRelease, ResourceType: ResourceHost, ResourceID: "h", User: "alice", Reason: "decommissioned", Timestamp: base.Add(48 * time.Hour)})

	page, err := trail.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, page.Results, 20)
	assert.Equal(t, models.Pagination{Page: 1, PageSize: 20, Total: 26, TotalPages: 2}, page.Pagination)
	assert.Equal(t, ActionRelease, page.Results[0].ActionType, "newest first")
	assert.Equal(t, "decommissioned", page.Results[0].Reason)

	page, err = trail.Query(ctx, Filter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Results, 6)

	page, err = trail.Query(ctx, Filter{User: "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Pagination.Total)

	page, err = trail.Query(ctx, Filter{ActionType: ActionRelease})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total)

	start, end := base.Add(10*time.Hour), base.Add(14*time.Hour)
	page, err = trail.Query(ctx, Filter{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Pagination.Total)

	page, err = trail.Query(ctx, Filter{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Pagination.PageSize)
}

func TestQuery_RejectsBadFilters(t *testing.T) {
	_, store := db.NewTestDB(t)
	trail := NewTrail(store, logger.NewNop())
	ctx := context.Background()

	_, err := trail.Query(ctx, Filter{ActionType: "purge"})
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	_, err = trail.Query(ctx, Filter{ResourceType: "subnet"})
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))

	later, earlier := time.Now(), time.Now().Add(-time.Hour)
	_, err = trail.Query(ctx, Filter{StartDate: &later, EndDate: &earlier})
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeValidation))
}

func TestGet_NotFound(t *testing.T) {
	_, store := db.NewTestDB(t)

	_, err := NewTrail(store, logger.NewNop()).Get(context.Background(), "missing")
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeNotFound))
	assert.Equal(t, apperrors.DomainAudit, apperrors.GetErrorDomain(err))
}
