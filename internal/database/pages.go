package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

const pageColumns = `id, page_type, slug, entity_id, content, meta_title, meta_description,
	word_count, is_indexed, last_content_edit_source, created_at, updated_at`

const versionColumns = `id, seo_page_id, content, meta_title, meta_description, word_count,
	captured_at, superseded_by_queue_item_id`

// GetSeoPage returns the live page for (pageType, slug), or nil.
func (db *DB) GetSeoPage(pageType PageType, slug string) (*SeoPage, error) {
	return getSeoPage(db.conn, `SELECT `+pageColumns+` FROM seo_pages WHERE page_type = ? AND slug = ?`,
		string(pageType), slug)
}

// GetSeoPageByID returns a live page by ID, or nil.
func (db *DB) GetSeoPageByID(id int64) (*SeoPage, error) {
	return getSeoPage(db.conn, `SELECT `+pageColumns+` FROM seo_pages WHERE id = ?`, id)
}

// ListSeoPages returns live pages ordered by slug. An empty type lists all.
func (db *DB) ListSeoPages(pageType PageType) ([]SeoPage, error) {
	query := `SELECT ` + pageColumns + ` FROM seo_pages`
	var args []any
	if pageType != "" {
		query += ` WHERE page_type = ?`
		args = append(args, string(pageType))
	}
	query += ` ORDER BY page_type, slug`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []SeoPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *p)
	}
	return pages, rows.Err()
}

// ListPageVersions returns the snapshots of a page, newest first.
func (db *DB) ListPageVersions(pageID int64) ([]PageVersion, error) {
	rows, err := db.conn.Query(
		`SELECT `+versionColumns+` FROM page_versions WHERE seo_page_id = ? ORDER BY id DESC`, pageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []PageVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

func getPageVersion(q queryRower, id int64) (*PageVersion, error) {
	v, err := scanVersion(q.QueryRow(`SELECT `+versionColumns+` FROM page_versions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getSeoPage(q queryRower, query string, args ...any) (*SeoPage, error) {
	p, err := scanPage(q.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func scanPage(row scanner) (*SeoPage, error) {
	var p SeoPage
	var pageType, contentJSON string
	var indexed int
	var source *string
	if err := row.Scan(&p.ID, &pageType, &p.Slug, &p.EntityID, &contentJSON, &p.MetaTitle,
		&p.MetaDescription, &p.WordCount, &indexed, &source, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.PageType = PageType(pageType)
	p.IsIndexed = indexed != 0
	if source != nil {
		p.LastContentEditSource = *source
	}
	if err := json.Unmarshal([]byte(contentJSON), &p.Content); err != nil {
		return nil, fmt.Errorf("decoding content of page %d: %w", p.ID, err)
	}
	return &p, nil
}

func scanVersion(row scanner) (*PageVersion, error) {
	var v PageVersion
	var contentJSON string
	if err := row.Scan(&v.ID, &v.SeoPageID, &contentJSON, &v.MetaTitle, &v.MetaDescription,
		&v.WordCount, &v.CapturedAt, &v.SupersededByQueueItemID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contentJSON), &v.Content); err != nil {
		return nil, fmt.Errorf("decoding content of version %d: %w", v.ID, err)
	}
	return &v, nil
}
