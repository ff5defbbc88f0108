package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/geopages/internal/content"
)

var (
	ErrPageNotFound    = errors.New("seo page not found")
	ErrVersionNotFound = errors.New("page version not found")
)

// Stages reported to the publish hook.
const (
	stageSnapshotWritten = "snapshot_written"
	stagePageWritten     = "page_written"
	stageEntityMarked    = "entity_marked"
)

// PublishParams describes one publish of a queue item's draft.
type PublishParams struct {
	QueueItemID     int64
	From            []QueueStatus
	Content         content.Document
	MetaTitle       string
	MetaDescription string
	WordCount       int
	// ApprovedBy is set only on the manual approval path.
	ApprovedBy *string
	EditSource string
}

// PublishQueueItem snapshots the current live page (if any), overwrites it
// with the draft, marks the geo entity live and the queue item published.
// All four writes commit together or not at all; if the queue item has left
// the expected statuses, nothing is written and ErrStaleStatus is returned.
func (db *DB) PublishQueueItem(p PublishParams) (*SeoPage, error) {
	data, err := json.Marshal(p.Content)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var pageType, slug, status string
	var entityID int64
	err = tx.QueryRow(
		`SELECT page_type, entity_slug, entity_id, status FROM queue_items WHERE id = ?`, p.QueueItemID,
	).Scan(&pageType, &slug, &entityID, &status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("queue item %d not found", p.QueueItemID)
	}
	if err != nil {
		return nil, err
	}
	if !containsStatus(p.From, QueueStatus(status)) {
		return nil, ErrStaleStatus
	}

	existing, err := getSeoPage(tx, `SELECT `+pageColumns+` FROM seo_pages WHERE page_type = ? AND slug = ?`, pageType, slug)
	if err != nil {
		return nil, fmt.Errorf("loading live page: %w", err)
	}
	if existing != nil {
		if _, err := tx.Exec(
			`INSERT INTO page_versions
			(seo_page_id, content, meta_title, meta_description, word_count, superseded_by_queue_item_id)
			SELECT id, content, meta_title, meta_description, word_count, ? FROM seo_pages WHERE id = ?`,
			p.QueueItemID, existing.ID,
		); err != nil {
			return nil, fmt.Errorf("writing page version: %w", err)
		}
	}
	if err := db.runPublishHook(stageSnapshotWritten); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		`INSERT INTO seo_pages
		(page_type, slug, entity_id, content, meta_title, meta_description, word_count, last_content_edit_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_type, slug) DO UPDATE SET
			entity_id = excluded.entity_id,
			content = excluded.content,
			meta_title = excluded.meta_title,
			meta_description = excluded.meta_description,
			word_count = excluded.word_count,
			last_content_edit_source = excluded.last_content_edit_source,
			updated_at = datetime('now')`,
		pageType, slug, entityID, string(data), p.MetaTitle, p.MetaDescription, p.WordCount, p.EditSource,
	); err != nil {
		return nil, fmt.Errorf("writing live page: %w", err)
	}
	if err := db.runPublishHook(stagePageWritten); err != nil {
		return nil, err
	}

	if err := markPageLive(tx, entityID); err != nil {
		return nil, err
	}
	if err := db.runPublishHook(stageEntityMarked); err != nil {
		return nil, err
	}

	query := `UPDATE queue_items SET
			status = 'published', published_at = datetime('now'),
			approved_by = ?, approved_at = CASE WHEN ? IS NULL THEN NULL ELSE datetime('now') END,
			error_message = NULL, updated_at = datetime('now')
		WHERE id = ? AND status IN (` + placeholders(len(p.From)) + `)`
	args := []any{p.ApprovedBy, p.ApprovedBy, p.QueueItemID}
	args = append(args, statusArgs(p.From)...)
	if err := execTransition(tx, query, args...); err != nil {
		return nil, err
	}

	page, err := getSeoPage(tx, `SELECT `+pageColumns+` FROM seo_pages WHERE page_type = ? AND slug = ?`, pageType, slug)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing publish: %w", err)
	}
	return page, nil
}

// RollbackPage restores a page from one of its own version snapshots and
// records the action as a new published queue item. The snapshot and all
// other queue items are left untouched.
func (db *DB) RollbackPage(pageID, versionID int64, user *string) (*QueueItem, *SeoPage, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	page, err := getSeoPage(tx, `SELECT `+pageColumns+` FROM seo_pages WHERE id = ?`, pageID)
	if err != nil {
		return nil, nil, err
	}
	if page == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrPageNotFound, pageID)
	}

	version, err := getPageVersion(tx, versionID)
	if err != nil {
		return nil, nil, err
	}
	if version == nil || version.SeoPageID != pageID {
		return nil, nil, fmt.Errorf("%w: version %d of page %d", ErrVersionNotFound, versionID, pageID)
	}

	if _, err := tx.Exec(
		`UPDATE seo_pages SET
			content = v.content, meta_title = v.meta_title, meta_description = v.meta_description,
			word_count = v.word_count, last_content_edit_source = ?, updated_at = datetime('now')
		FROM (SELECT content, meta_title, meta_description, word_count FROM page_versions WHERE id = ?) AS v
		WHERE seo_pages.id = ?`,
		EditSourceRollback, versionID, pageID,
	); err != nil {
		return nil, nil, fmt.Errorf("restoring page: %w", err)
	}

	var parentSlug *string
	err = tx.QueryRow(
		`SELECT p.slug FROM geo_entities e JOIN geo_entities p ON p.id = e.parent_id WHERE e.id = ?`, page.EntityID,
	).Scan(&parentSlug)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, err
	}

	result, err := tx.Exec(
		`INSERT INTO queue_items
		(page_type, entity_id, entity_slug, parent_slug, status, triggered_by, triggered_by_user,
		 content, approved_by, approved_at, published_at)
		SELECT ?, ?, ?, ?, 'published', 'rollback', ?, content, ?,
			CASE WHEN ? IS NULL THEN NULL ELSE datetime('now') END, datetime('now')
		FROM page_versions WHERE id = ?`,
		string(page.PageType), page.EntityID, page.Slug, parentSlug, user, user, user, versionID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("recording rollback: %w", err)
	}
	itemID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, err
	}

	item, err := scanQueueItem(tx.QueryRow(`SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, itemID))
	if err != nil {
		return nil, nil, err
	}
	restored, err := getSeoPage(tx, `SELECT `+pageColumns+` FROM seo_pages WHERE id = ?`, pageID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing rollback: %w", err)
	}
	return item, restored, nil
}

func (db *DB) runPublishHook(stage string) error {
	if db.publishHook == nil {
		return nil
	}
	if err := db.publishHook(stage); err != nil {
		return fmt.Errorf("publish aborted at %s: %w", stage, err)
	}
	return nil
}

func containsStatus(statuses []QueueStatus, s QueueStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
