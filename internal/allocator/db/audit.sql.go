package db

import (
	"context"
	"database/sql"
	"time"
)

const auditColumns = `seq, id, action_type, resource_type, resource_id, resource_name, scope_id, user_id,
	reason, metadata, timestamp`

func scanAuditEntry(row interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var i AuditEntry
	err := row.Scan(
		&i.Seq,
		&i.ID,
		&i.ActionType,
		&i.ResourceType,
		&i.ResourceID,
		&i.ResourceName,
		&i.ScopeID,
		&i.UserID,
		&i.Reason,
		&i.Metadata,
		&i.Timestamp,
	)
	return i, err
}

const createAuditEntry = `-- name: CreateAuditEntry :one
INSERT INTO audit_entries (
    id, action_type, resource_type, resource_id, resource_name, scope_id, user_id,
    reason, metadata, timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateAuditEntryParams struct {
	ID           string    `json:"id"`
	ActionType   string    `json:"action_type"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	ResourceName string    `json:"resource_name"`
	ScopeID      string    `json:"scope_id"`
	UserID       string    `json:"user_id"`
	Reason       string    `json:"reason"`
	Metadata     string    `json:"metadata"`
	Timestamp    time.Time `json:"timestamp"`
}

func (q *Queries) CreateAuditEntry(ctx context.Context, arg CreateAuditEntryParams) (AuditEntry, error) {
	_, err := q.db.ExecContext(ctx, createAuditEntry,
		arg.ID,
		arg.ActionType,
		arg.ResourceType,
		arg.ResourceID,
		arg.ResourceName,
		arg.ScopeID,
		arg.UserID,
		arg.Reason,
		arg.Metadata,
		arg.Timestamp,
	)
	if err != nil {
		return AuditEntry{}, err
	}
	return q.GetAuditEntry(ctx, arg.ID)
}

const createAuditChange = `-- name: CreateAuditChange :exec
INSERT INTO audit_changes (entry_id, position, field, old_value, new_value)
VALUES (?, ?, ?, ?, ?)`

type CreateAuditChangeParams struct {
	EntryID  string `json:"entry_id"`
	Position int64  `json:"position"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

func (q *Queries) CreateAuditChange(ctx context.Context, arg CreateAuditChangeParams) error {
	_, err := q.db.ExecContext(ctx, createAuditChange,
		arg.EntryID,
		arg.Position,
		arg.Field,
		arg.OldValue,
		arg.NewValue,
	)
	return err
}

const getAuditEntry = `-- name: GetAuditEntry :one
SELECT ` + auditColumns + ` FROM audit_entries WHERE id = ?`

func (q *Queries) GetAuditEntry(ctx context.Context, id string) (AuditEntry, error) {
	return scanAuditEntry(q.db.QueryRowContext(ctx, getAuditEntry, id))
}

const listAuditChanges = `-- name: ListAuditChanges :many
SELECT entry_id, position, field, old_value, new_value
FROM audit_changes WHERE entry_id = ?
ORDER BY position`

func (q *Queries) ListAuditChanges(ctx context.Context, entryID string) ([]AuditChange, error) {
	rows, err := q.db.QueryContext(ctx, listAuditChanges, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditChange
	for rows.Next() {
		var i AuditChange
		if err := rows.Scan(&i.EntryID, &i.Position, &i.Field, &i.OldValue, &i.NewValue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const auditFilter = `
WHERE (? = '' OR action_type = ?)
  AND (? = '' OR resource_type = ?)
  AND (? = '' OR resource_id = ?)
  AND (? = '' OR user_id = ?)
  AND (? IS NULL OR timestamp >= ?)
  AND (? IS NULL OR timestamp <= ?)`

const listAuditEntries = `-- name: ListAuditEntries :many
SELECT ` + auditColumns + ` FROM audit_entries` + auditFilter + `
ORDER BY seq DESC
LIMIT ? OFFSET ?`

type ListAuditEntriesParams struct {
	ActionType   string       `json:"action_type"`
	ResourceType string       `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	UserID       string       `json:"user_id"`
	StartDate    sql.NullTime `json:"start_date"`
	EndDate      sql.NullTime `json:"end_date"`
	Limit        int64        `json:"limit"`
	Offset       int64        `json:"offset"`
}

func (q *Queries) ListAuditEntries(ctx context.Context, arg ListAuditEntriesParams) ([]AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx, listAuditEntries,
		arg.ActionType, arg.ActionType,
		arg.ResourceType, arg.ResourceType,
		arg.ResourceID, arg.ResourceID,
		arg.UserID, arg.UserID,
		arg.StartDate, arg.StartDate,
		arg.EndDate, arg.EndDate,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AuditEntry
	for rows.Next() {
		i, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countAuditEntries = `-- name: CountAuditEntries :one
SELECT COUNT(*) FROM audit_entries` + auditFilter

type CountAuditEntriesParams struct {
	ActionType   string       `json:"action_type"`
	ResourceType string       `json:"resource_type"`
	ResourceID   string       `json:"resource_id"`
	UserID       string       `json:"user_id"`
	StartDate    sql.NullTime `json:"start_date"`
	EndDate      sql.NullTime `json:"end_date"`
}

func (q *Queries) CountAuditEntries(ctx context.Context, arg CountAuditEntriesParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countAuditEntries,
		arg.ActionType, arg.ActionType,
		arg.ResourceType, arg.ResourceType,
		arg.ResourceID, arg.ResourceID,
		arg.UserID, arg.UserID,
		arg.StartDate, arg.StartDate,
		arg.EndDate, arg.EndDate,
	).Scan(&count)
	return count, err
}

const listAllocationEvents = `-- name: ListAllocationEvents :many
SELECT action_type, timestamp FROM audit_entries
WHERE resource_type = ?
  AND (? = '' OR scope_id = ?)
  AND action_type IN ('create', 'release', 'retire')
  AND timestamp >= ?
ORDER BY seq`

type ListAllocationEventsParams struct {
	ResourceType string    `json:"resource_type"`
	ScopeID      string    `json:"scope_id"`
	Since        time.Time `json:"since"`
}

type ListAllocationEventsRow struct {
	ActionType string    `json:"action_type"`
	Timestamp  time.Time `json:"timestamp"`
}

// ListAllocationEvents returns the creates, releases and retirements of a
// resource type within one scope (or all scopes when ScopeID is empty).
func (q *Queries) ListAllocationEvents(ctx context.Context, arg ListAllocationEventsParams) ([]ListAllocationEventsRow, error) {
	rows, err := q.db.QueryContext(ctx, listAllocationEvents,
		arg.ResourceType,
		arg.ScopeID, arg.ScopeID,
		arg.Since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListAllocationEventsRow
	for rows.Next() {
		var i ListAllocationEventsRow
		if err := rows.Scan(&i.ActionType, &i.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
