// Package audit records every allocation state change. Entries are written
// through the caller's transaction so the change and its record commit or
// roll back together. There is no way to modify or delete an entry.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/config"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/chiquitav2/ipam/internal/shared/models"
	"github.com/google/uuid"
)

// Action is the kind of state change.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionRelease Action = "release"
	ActionRetire  Action = "retire"
)

// ResourceType is the kind of resource an entry is about.
type ResourceType string

const (
	ResourceRegion  ResourceType = "region"
	ResourceHost    ResourceType = "host"
	ResourceCountry ResourceType = "country"
)

// SystemUser is recorded when no actor is known.
const SystemUser = "system"

func (a Action) valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionRelease, ActionRetire:
		return true
	}
	return false
}

func (r ResourceType) valid() bool {
	switch r {
	case ResourceRegion, ResourceHost, ResourceCountry:
		return true
	}
	return false
}

// Change is one field transition.
type Change struct {
	Field    string `json:"field" yaml:"field"`
	OldValue string `json:"old_value" yaml:"old_value"`
	NewValue string `json:"new_value" yaml:"new_value"`
}

// Changes accumulates field transitions in order.
type Changes []Change

// Track appends a change only when the value actually differs.
func (c *Changes) Track(field, oldValue, newValue string) {
	if oldValue == newValue {
		return
	}
	*c = append(*c, Change{Field: field, OldValue: oldValue, NewValue: newValue})
}

// Set appends a change unconditionally. Creates use it to list every field.
func (c *Changes) Set(field, oldValue, newValue string) {
	*c = append(*c, Change{Field: field, OldValue: oldValue, NewValue: newValue})
}

// Entry is one immutable audit record.
type Entry struct {
	ID           string            `json:"id" yaml:"id"`
	Seq          int64             `json:"seq" yaml:"seq"`
	ActionType   Action            `json:"action_type" yaml:"action_type"`
	ResourceType ResourceType      `json:"resource_type" yaml:"resource_type"`
	ResourceID   string            `json:"resource_id" yaml:"resource_id"`
	ResourceName string            `json:"resource_name" yaml:"resource_name"`
	ScopeID      string            `json:"scope_id,omitempty" yaml:"scope_id,omitempty"`
	User         string            `json:"user" yaml:"user"`
	Timestamp    time.Time         `json:"timestamp" yaml:"timestamp"`
	Reason       string            `json:"reason,omitempty" yaml:"reason,omitempty"`
	Changes      []Change          `json:"changes" yaml:"changes"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Record writes the entry with q, which must be bound to the transaction
// carrying the state change. Release and retire entries require a reason.
func Record(ctx context.Context, q *db.Queries, e Entry) (Entry, error) {
	if !e.ActionType.valid() {
		return Entry{}, apperrors.NewValidationError(apperrors.DomainAudit, "action_type", "unknown audit action").
			WithMetadata("action_type", string(e.ActionType))
	}
	if !e.ResourceType.valid() {
		return Entry{}, apperrors.NewValidationError(apperrors.DomainAudit, "resource_type", "unknown audit resource type").
			WithMetadata("resource_type", string(e.ResourceType))
	}
	if e.ResourceID == "" {
		return Entry{}, apperrors.NewValidationError(apperrors.DomainAudit, "resource_id", "resource id is required")
	}
	if (e.ActionType == ActionRelease || e.ActionType == ActionRetire) && strings.TrimSpace(e.Reason) == "" {
		return Entry{}, apperrors.NewValidationError(apperrors.DomainAudit, "reason", "reason is required for "+string(e.ActionType))
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if strings.TrimSpace(e.User) == "" {
		e.User = SystemUser
	}

	metadata := "{}"
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return Entry{}, apperrors.NewAuditError(apperrors.ErrCodeInternal, "failed to encode audit metadata", false, err)
		}
		metadata = string(raw)
	}

	row, err := q.CreateAuditEntry(ctx, db.CreateAuditEntryParams{
		ID:           e.ID,
		ActionType:   string(e.ActionType),
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		ScopeID:      e.ScopeID,
		UserID:       e.User,
		Reason:       e.Reason,
		Metadata:     metadata,
		Timestamp:    e.Timestamp,
	})
	if err != nil {
		return Entry{}, apperrors.NewPersistenceError("record audit entry", err)
	}

	for i, c := range e.Changes {
		if err := q.CreateAuditChange(ctx, db.CreateAuditChangeParams{
			EntryID:  e.ID,
			Position: int64(i),
			Field:    c.Field,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
		}); err != nil {
			return Entry{}, apperrors.NewPersistenceError("record audit change", err)
		}
	}

	e.Seq = row.Seq
	if e.Changes == nil {
		e.Changes = []Change{}
	}
	return e, nil
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	ActionType   Action
	ResourceType ResourceType
	ResourceID   string
	User         string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}

// Trail is the read side of the audit log.
type Trail struct {
	store  db.Store
	logger *logger.Logger
	paging config.PaginationDefaults
}

// NewTrail creates the audit read service.
func NewTrail(store db.Store, log *logger.Logger) *Trail {
	return &Trail{
		store:  store,
		logger: log.WithComponent("audit"),
		paging: config.NewInternalDefaults().PaginationDefaults(),
	}
}

// Query returns matching entries newest first.
func (t *Trail) Query(ctx context.Context, f Filter) (*models.Page[Entry], error) {
	if f.ActionType != "" && !f.ActionType.valid() {
		return nil, apperrors.NewValidationError(apperrors.DomainAudit, "action_type", "unknown audit action").
			WithMetadata("action_type", string(f.ActionType))
	}
	if f.ResourceType != "" && !f.ResourceType.valid() {
		return nil, apperrors.NewValidationError(apperrors.DomainAudit, "resource_type", "unknown audit resource type").
			WithMetadata("resource_type", string(f.ResourceType))
	}
	if f.StartDate != nil && f.EndDate != nil && f.StartDate.After(*f.EndDate) {
		return nil, apperrors.NewValidationError(apperrors.DomainAudit, "start_date", "start_date must not be after end_date")
	}

	page, size := t.paging.NormalizePage(f.Page, f.PageSize)
	pagination := models.NewPagination(page, size, 0)
	start, end := nullTime(f.StartDate), nullTime(f.EndDate)

	total, err := t.store.CountAuditEntries(ctx, db.CountAuditEntriesParams{
		ActionType:   string(f.ActionType),
		ResourceType: string(f.ResourceType),
		ResourceID:   f.ResourceID,
		UserID:       f.User,
		StartDate:    start,
		EndDate:      end,
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("count audit entries", err)
	}

	rows, err := t.store.ListAuditEntries(ctx, db.ListAuditEntriesParams{
		ActionType:   string(f.ActionType),
		ResourceType: string(f.ResourceType),
		ResourceID:   f.ResourceID,
		UserID:       f.User,
		StartDate:    start,
		EndDate:      end,
		Limit:        int64(size),
		Offset:       pagination.Offset(),
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list audit entries", err)
	}

	results := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := t.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return &models.Page[Entry]{
		Results:    results,
		Pagination: models.NewPagination(page, size, total),
	}, nil
}

// Get returns a single entry by id.
func (t *Trail) Get(ctx context.Context, id string) (*Entry, error) {
	row, err := t.store.GetAuditEntry(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperrors.DomainErrAuditNotFound.WithMetadata("entry_id", id)
		}
		return nil, apperrors.NewPersistenceError("get audit entry", err)
	}

	e, err := t.hydrate(ctx, row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *Trail) hydrate(ctx context.Context, row db.AuditEntry) (Entry, error) {
	changes, err := t.store.ListAuditChanges(ctx, row.ID)
	if err != nil {
		return Entry{}, apperrors.NewPersistenceError("list audit changes", err)
	}

	e := FromRow(row)
	for _, c := range changes {
		e.Changes = append(e.Changes, Change{Field: c.Field, OldValue: c.OldValue, NewValue: c.NewValue})
	}

	if row.Metadata != "" && row.Metadata != "{}" {
		if err := json.Unmarshal([]byte(row.Metadata), &e.Metadata); err != nil {
			// A malformed blob should not hide the entry itself.
			t.logger.Warn("undecodable audit metadata", "entry_id", row.ID, "error", err)
		}
	}
	return e, nil
}

// FromRow converts a stored row without its changes.
func FromRow(row db.AuditEntry) Entry {
	return Entry{
		ID:           row.ID,
		Seq:          row.Seq,
		ActionType:   Action(row.ActionType),
		ResourceType: ResourceType(row.ResourceType),
		ResourceID:   row.ResourceID,
		ResourceName: row.ResourceName,
		ScopeID:      row.ScopeID,
		User:         row.UserID,
		Timestamp:    row.Timestamp.UTC(),
		Reason:       row.Reason,
		Changes:      []Change{},
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
