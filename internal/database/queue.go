package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/geopages/internal/content"
)

// GenerationFailedPrefix marks an error_message on a queue item whose
// generation attempts are exhausted.
const GenerationFailedPrefix = "generation_failed: "

const queueColumns = `id, page_type, entity_id, entity_slug, parent_slug, status, triggered_by,
	triggered_by_user, priority, batch_id, content, ai_confidence_score, seo_validation_passed,
	seo_validation_errors, generation_attempts, last_attempt_at, error_message, rejection_reason,
	approved_by, approved_at, published_at, created_at, updated_at`

// EnqueueQueueItem inserts a pending queue item unless a live one already
// exists for the entity, in which case the existing row is returned and
// created is false. The partial unique index on live rows makes this safe
// under concurrent callers.
func (db *DB) EnqueueQueueItem(n NewQueueItem) (item *QueueItem, created bool, err error) {
	result, err := db.conn.Exec(
		`INSERT INTO queue_items
		(page_type, entity_id, entity_slug, parent_slug, status, triggered_by, triggered_by_user, priority, batch_id)
		VALUES (?, ?, ?, ?, 'pending', ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		string(n.PageType), n.EntityID, n.EntitySlug, n.ParentSlug,
		string(n.TriggeredBy), n.TriggeredByUser, n.Priority, n.BatchID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting queue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		existing, err := db.FindLiveQueueItem(n.PageType, n.EntityID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("queue item for %s %d conflicted but no live row found", n.PageType, n.EntityID)
		}
		return existing, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	item, err = db.GetQueueItem(id)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// GetQueueItem returns a queue item by ID, or nil.
func (db *DB) GetQueueItem(id int64) (*QueueItem, error) {
	row := db.conn.QueryRow(`SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindLiveQueueItem returns the live queue item for an entity, or nil.
func (db *DB) FindLiveQueueItem(pageType PageType, entityID int64) (*QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items
		WHERE page_type = ? AND entity_id = ? AND status IN (` + placeholders(len(LiveStatuses)) + `)`
	args := []any{string(pageType), entityID}
	args = append(args, statusArgs(LiveStatuses)...)

	item, err := scanQueueItem(db.conn.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// ListQueueItems returns queue items ordered by priority (highest first),
// then age.
func (db *DB) ListQueueItems(f QueueFilter) ([]QueueItem, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.PageType != "" {
		where = append(where, "page_type = ?")
		args = append(args, string(f.PageType))
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}

	query := `SELECT ` + queueColumns + ` FROM queue_items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, created_at ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// TransitionStatus moves a queue item to status to, provided it is still in
// one of the from statuses. It returns ErrStaleStatus when the precondition
// no longer holds.
func (db *DB) TransitionStatus(id int64, from []QueueStatus, to QueueStatus) error {
	query := `UPDATE queue_items SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args := []any{string(to), id}
	args = append(args, statusArgs(from)...)
	return execTransition(db.conn, query, args...)
}

// RecordGenerationSuccess stores a draft on a generating item, bumps the
// attempt counter and moves it to generated.
func (db *DB) RecordGenerationSuccess(id int64, doc content.Document, confidence float64) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := execTransition(tx,
		`UPDATE queue_items SET
			status = 'generated', content = ?, ai_confidence_score = ?,
			generation_attempts = generation_attempts + 1, last_attempt_at = datetime('now'),
			error_message = NULL, updated_at = datetime('now')
		WHERE id = ? AND status = 'generating'`,
		string(data), confidence, id,
	); err != nil {
		return err
	}
	if err := logAttempt(tx, id, true, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordGenerationFailure bumps the attempt counter of a generating item and
// stores the error. Items that reached maxAttempts become validated_failed
// with GenerationFailedPrefix on the message; the rest return to pending.
// It returns the resulting status.
func (db *DB) RecordGenerationFailure(id int64, message string, maxAttempts int) (QueueStatus, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRow(
		`SELECT generation_attempts FROM queue_items WHERE id = ? AND status = 'generating'`, id,
	).Scan(&attempts); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrStaleStatus
		}
		return "", err
	}

	attempts++
	next := StatusPending
	stored := message
	if maxAttempts > 0 && attempts >= maxAttempts {
		next = StatusValidatedFailed
		stored = GenerationFailedPrefix + message
	}

	if err := execTransition(tx,
		`UPDATE queue_items SET
			status = ?, generation_attempts = ?, last_attempt_at = datetime('now'),
			error_message = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'generating'`,
		string(next), attempts, stored, id,
	); err != nil {
		return "", err
	}
	if err := logAttempt(tx, id, false, &message); err != nil {
		return "", err
	}
	return next, tx.Commit()
}

// ReclaimStaleGenerations fails every item that has sat in generating since
// before cutoff, as if its generation call had errored. It returns the IDs it
// moved and leaves alone any item that finished in the meantime.
func (db *DB) ReclaimStaleGenerations(cutoff time.Time, message string, maxAttempts int) ([]int64, error) {
	rows, err := db.conn.Query(
		`SELECT id FROM queue_items WHERE status = 'generating' AND updated_at < ? ORDER BY id`,
		cutoff.UTC().Format(time.DateTime),
	)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	var reclaimed []int64
	for _, id := range ids {
		if _, err := db.RecordGenerationFailure(id, message, maxAttempts); err != nil {
			if errors.Is(err, ErrStaleStatus) {
				continue
			}
			return reclaimed, err
		}
		reclaimed = append(reclaimed, id)
	}
	return reclaimed, nil
}

// RecordValidation stores the validator outcome on a generated item and moves
// it to validated_passed or validated_failed.
func (db *DB) RecordValidation(id int64, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	passed := len(errs) == 0
	next := StatusValidatedFailed
	if passed {
		next = StatusValidatedPassed
	}
	return execTransition(db.conn,
		`UPDATE queue_items SET
			status = ?, seo_validation_passed = ?, seo_validation_errors = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'generated'`,
		string(next), boolToInt(passed), string(data), id,
	)
}

// HoldForApproval parks a validated item until an admin acts on it. A
// non-nil note is stored as the error message.
func (db *DB) HoldForApproval(id int64, note *string) error {
	return execTransition(db.conn,
		`UPDATE queue_items SET status = 'awaiting_approval', error_message = ?, updated_at = datetime('now')
		WHERE id = ? AND status = 'validated_passed'`,
		note, id,
	)
}

// RejectQueueItem marks a post-generation item rejected.
func (db *DB) RejectQueueItem(id int64, reason *string) error {
	return execTransition(db.conn,
		`UPDATE queue_items SET status = 'rejected', rejection_reason = ?, updated_at = datetime('now')
		WHERE id = ? AND status IN ('validated_passed', 'validated_failed', 'awaiting_approval')`,
		reason, id,
	)
}

// CountGenerationsToday returns the number of generation calls made since
// midnight UTC.
func (db *DB) CountGenerationsToday() (int, error) {
	var n int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM generation_attempts WHERE attempted_at >= date('now')`,
	).Scan(&n)
	return n, err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func execTransition(ex execer, query string, args ...any) error {
	result, err := ex.Exec(query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrLiveItemExists
		}
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func logAttempt(tx *sql.Tx, queueItemID int64, succeeded bool, message *string) error {
	_, err := tx.Exec(
		`INSERT INTO generation_attempts (queue_item_id, succeeded, error) VALUES (?, ?, ?)`,
		queueItemID, boolToInt(succeeded), message,
	)
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []QueueStatus) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}

func scanQueueItem(row scanner) (*QueueItem, error) {
	var item QueueItem
	var pageType, status, trigger string
	var contentJSON, errorsJSON *string
	var passed *int
	if err := row.Scan(&item.ID, &pageType, &item.EntityID, &item.EntitySlug, &item.ParentSlug,
		&status, &trigger, &item.TriggeredByUser, &item.Priority, &item.BatchID, &contentJSON,
		&item.AIConfidenceScore, &passed, &errorsJSON, &item.GenerationAttempts, &item.LastAttemptAt,
		&item.ErrorMessage, &item.RejectionReason, &item.ApprovedBy, &item.ApprovedAt,
		&item.PublishedAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.PageType = PageType(pageType)
	item.Status = QueueStatus(status)
	item.TriggeredBy = Trigger(trigger)

	if passed != nil {
		v := *passed != 0
		item.SeoValidationPassed = &v
	}
	if contentJSON != nil {
		var doc content.Document
		if err := json.Unmarshal([]byte(*contentJSON), &doc); err != nil {
			return nil, fmt.Errorf("decoding content of queue item %d: %w", item.ID, err)
		}
		item.Content = &doc
	}
	if errorsJSON != nil {
		if err := json.Unmarshal([]byte(*errorsJSON), &item.SeoValidationErrors); err != nil {
			item.SeoValidationErrors = nil
		}
	}
	return &item, nil
}
