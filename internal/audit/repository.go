package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drmas001/imd-v2.8/internal/shared/errors"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

const entrySelect = `
	SELECT id, sequence, created_at, hash, prev_hash,
		actor_type, actor_id, COALESCE(actor_name, ''),
		action, resource_type, COALESCE(resource_id, ''),
		details, COALESCE(correlation_id, '')
	FROM audit_log`

// Repository is the append-only audit store. The mutex serializes
// appends so the hash chain never forks.
type Repository struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastHash string
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Initialize loads the chain head so new entries link to it.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT hash FROM audit_log
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&hash)

	if err != nil && err != pgx.ErrNoRows {
		return errors.Storage(err, "failed to load the audit chain head")
	}

	r.lastHash = hash
	return nil
}

// Append links the entry to the chain head and persists it.
func (r *Repository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.PrevHash = r.lastHash
	entry.Hash = entry.calculateHash()

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return errors.Storage(err, "failed to marshal audit details")
	}

	query := `
		INSERT INTO audit_log (
			id, created_at, hash, prev_hash,
			actor_type, actor_id, actor_name,
			action, resource_type, resource_id,
			details, correlation_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11, NULLIF($12, '')
		) RETURNING sequence`

	err = r.pool.QueryRow(ctx, query,
		entry.ID, entry.Timestamp, entry.Hash, entry.PrevHash,
		entry.ActorType, entry.ActorID, entry.ActorName,
		entry.Action, entry.ResourceType, entry.ResourceID,
		detailsJSON, entry.CorrelationID,
	).Scan(&entry.Sequence)

	if err != nil {
		return errors.Storage(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var detailsJSON []byte

	err := row.Scan(
		&e.ID, &e.Sequence, &e.Timestamp, &e.Hash, &e.PrevHash,
		&e.ActorType, &e.ActorID, &e.ActorName,
		&e.Action, &e.ResourceType, &e.ResourceID,
		&detailsJSON, &e.CorrelationID,
	)
	if err != nil {
		return nil, err
	}

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
			e.Details = nil
		}
	}
	return &e, nil
}

// List queries audit entries, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argNum))
		args = append(args, *filter.ActorID)
		argNum++
	}

	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action LIKE $%d", argNum))
		args = append(args, filter.Action+"%")
		argNum++
	}

	if filter.ResourceType != "" {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argNum))
		args = append(args, filter.ResourceType)
		argNum++
	}

	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", argNum))
		args = append(args, filter.ResourceID)
		argNum++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, *filter.From)
		argNum++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, *filter.To)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_log %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Storage(err, "failed to count audit entries")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`%s
	%s
	ORDER BY sequence DESC
	LIMIT $%d OFFSET $%d`, entrySelect, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Storage(err, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, errors.Storage(err, "failed to scan audit entry")
		}
		entries = append(entries, *e)
	}

	return entries, total, nil
}

// FindByResource returns the audit trail of one resource, newest
// first.
func (r *Repository) FindByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	entries, _, err := r.List(ctx, ListFilter{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Limit:        limit,
	})
	return entries, err
}

// VerifyResult summarizes a chain verification run
type VerifyResult struct {
	Valid          bool          `json:"valid"`
	Checked        int           `json:"checked"`
	ContentValid   int           `json:"content_valid"`
	ContentInvalid int           `json:"content_invalid"`
	LinkageValid   int           `json:"linkage_valid"`
	LinkageInvalid int           `json:"linkage_invalid"`
	Violations     []string      `json:"violations,omitempty"`
	Entries        []EntryResult `json:"entries,omitempty"`
}

// EntryResult is the per-entry verification detail
type EntryResult struct {
	ID            types.ID `json:"id"`
	Sequence      int64    `json:"sequence"`
	Hash          string   `json:"hash"`
	ComputedHash  string   `json:"computed_hash,omitempty"`
	PrevHash      string   `json:"prev_hash"`
	Valid         bool     `json:"valid"`
	ContentValid  bool     `json:"content_valid"`
	LinkageValid  bool     `json:"linkage_valid"`
	Action        string   `json:"action"`
	ViolationType string   `json:"violation_type,omitempty"`
}

// VerifyChain re-checks the newest entries: each entry's hash against
// its content, and each entry's hash against the next entry's
// prev_hash.
func (r *Repository) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`%s
	ORDER BY sequence DESC
	LIMIT $1`, entrySelect), limit)
	if err != nil {
		return nil, errors.Storage(err, "failed to query audit entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Storage(err, "failed to scan audit entry")
		}
		entries = append(entries, *e)
	}

	return verifyEntries(entries, includeDetails), nil
}

// VerifyResource re-checks one resource's entries. Entries of a
// single resource are not adjacent in the chain, so only the content
// hashes are checked; chain linkage is a whole-chain property.
func (r *Repository) VerifyResource(ctx context.Context, resourceType, resourceID string, limit int) (*VerifyResult, error) {
	entries, err := r.FindByResource(ctx, resourceType, resourceID, limit)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Valid:   true,
		Entries: make([]EntryResult, 0, len(entries)),
	}
	for _, e := range entries {
		detail := EntryResult{
			ID:           e.ID,
			Sequence:     e.Sequence,
			Hash:         e.Hash,
			PrevHash:     e.PrevHash,
			Action:       e.Action,
			ContentValid: true,
			LinkageValid: true,
			Valid:        true,
		}

		computed := e.ComputeHash()
		detail.ComputedHash = computed
		if computed != e.Hash {
			detail.ContentValid = false
			detail.Valid = false
			detail.ViolationType = "content"
			result.ContentInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("content tampered: entry %s (seq %d) hash does not match content", e.ID, e.Sequence))
		} else {
			result.ContentValid++
		}

		result.Entries = append(result.Entries, detail)
		result.Checked++
	}
	return result, nil
}

// verifyEntries runs the two checks over entries ordered newest
// first.
func verifyEntries(entries []Entry, includeDetails bool) *VerifyResult {
	result := &VerifyResult{
		Valid:   true,
		Entries: make([]EntryResult, 0),
	}

	// prevHash holds what the entry after this one (in time) recorded
	// as its predecessor's hash
	var prevHash string

	for i, e := range entries {
		detail := EntryResult{
			ID:           e.ID,
			Sequence:     e.Sequence,
			Hash:         e.Hash,
			PrevHash:     e.PrevHash,
			Action:       e.Action,
			ContentValid: true,
			LinkageValid: true,
			Valid:        true,
		}

		computed := e.ComputeHash()
		detail.ComputedHash = computed
		if computed != e.Hash {
			detail.ContentValid = false
			detail.Valid = false
			detail.ViolationType = "content"
			result.ContentInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("content tampered: entry %s (seq %d) hash does not match content", e.ID, e.Sequence))
		} else {
			result.ContentValid++
		}

		if i > 0 && prevHash != "" && e.Hash != prevHash {
			detail.LinkageValid = false
			detail.Valid = false
			result.LinkageInvalid++
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("chain broken: entry %s (seq %d) hash does not match the next entry's prev_hash", e.ID, e.Sequence))
			if detail.ViolationType == "content" {
				detail.ViolationType = "both"
			} else {
				detail.ViolationType = "linkage"
			}
		} else if i > 0 {
			result.LinkageValid++
		}

		if includeDetails {
			result.Entries = append(result.Entries, detail)
		}

		prevHash = e.PrevHash
		result.Checked++
	}

	return result
}
