package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS geo_entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL CHECK(entity_type IN ('state', 'city')),
    name TEXT NOT NULL,
    slug TEXT NOT NULL,
    parent_id INTEGER REFERENCES geo_entities(id),
    is_active INTEGER DEFAULT 1,
    page_exists INTEGER DEFAULT 0,
    seo_status TEXT DEFAULT 'none',
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE(entity_type, slug)
);

CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    auto_publish_enabled INTEGER DEFAULT 0,
    auto_publish_threshold REAL DEFAULT 0.85,
    max_daily_generations INTEGER DEFAULT 50,
    content_min_words INTEGER DEFAULT 300,
    content_max_words INTEGER DEFAULT 2000,
    require_admin_approval INTEGER DEFAULT 1,
    updated_at TEXT DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO settings (id) VALUES (1);

CREATE TABLE IF NOT EXISTS queue_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_type TEXT NOT NULL CHECK(page_type IN ('state', 'city')),
    entity_id INTEGER NOT NULL,
    entity_slug TEXT NOT NULL,
    parent_slug TEXT,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN (
        'pending', 'generating', 'generated', 'validated_passed', 'validated_failed',
        'awaiting_approval', 'published', 'rejected', 'rolled_back')),
    triggered_by TEXT NOT NULL CHECK(triggered_by IN ('manual', 'bulk', 'rollback')),
    triggered_by_user TEXT,
    priority INTEGER DEFAULT 0,
    batch_id TEXT,
    content TEXT,
    ai_confidence_score REAL,
    seo_validation_passed INTEGER,
    seo_validation_errors TEXT,
    generation_attempts INTEGER NOT NULL DEFAULT 0,
    last_attempt_at TEXT,
    error_message TEXT,
    rejection_reason TEXT,
    approved_by TEXT,
    approved_at TEXT,
    published_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    CHECK((status = 'published') = (published_at IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_items_live ON queue_items(page_type, entity_id)
    WHERE status IN ('pending', 'generating', 'generated', 'validated_passed', 'awaiting_approval');

CREATE TABLE IF NOT EXISTS seo_pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    page_type TEXT NOT NULL CHECK(page_type IN ('state', 'city')),
    slug TEXT NOT NULL,
    entity_id INTEGER NOT NULL,
    content TEXT NOT NULL,
    meta_title TEXT NOT NULL DEFAULT '',
    meta_description TEXT NOT NULL DEFAULT '',
    word_count INTEGER DEFAULT 0,
    is_indexed INTEGER DEFAULT 1,
    last_content_edit_source TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE(page_type, slug)
);

CREATE TABLE IF NOT EXISTS page_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    seo_page_id INTEGER NOT NULL REFERENCES seo_pages(id),
    content TEXT NOT NULL,
    meta_title TEXT NOT NULL DEFAULT '',
    meta_description TEXT NOT NULL DEFAULT '',
    word_count INTEGER DEFAULT 0,
    captured_at TEXT DEFAULT (datetime('now')),
    superseded_by_queue_item_id INTEGER NOT NULL REFERENCES queue_items(id)
);

CREATE TRIGGER IF NOT EXISTS page_versions_no_update BEFORE UPDATE ON page_versions
BEGIN
    SELECT RAISE(ABORT, 'page versions are immutable');
END;

CREATE TRIGGER IF NOT EXISTS page_versions_no_delete BEFORE DELETE ON page_versions
BEGIN
    SELECT RAISE(ABORT, 'page versions are immutable');
END;

CREATE TABLE IF NOT EXISTS generation_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue_item_id INTEGER NOT NULL REFERENCES queue_items(id),
    succeeded INTEGER NOT NULL,
    error TEXT,
    attempted_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status);
CREATE INDEX IF NOT EXISTS idx_queue_items_batch ON queue_items(batch_id);
CREATE INDEX IF NOT EXISTS idx_page_versions_page ON page_versions(seo_page_id);
CREATE INDEX IF NOT EXISTS idx_generation_attempts_at ON generation_attempts(attempted_at);
CREATE INDEX IF NOT EXISTS idx_geo_entities_parent ON geo_entities(parent_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
