package database

import (
	"fmt"
	"math"
)

// GetSettings returns the singleton settings row.
func (db *DB) GetSettings() (Settings, error) {
	var s Settings
	var autoPublish, requireApproval int
	err := db.conn.QueryRow(
		`SELECT auto_publish_enabled, auto_publish_threshold, max_daily_generations,
		content_min_words, content_max_words, require_admin_approval, updated_at
		FROM settings WHERE id = 1`,
	).Scan(&autoPublish, &s.AutoPublishThreshold, &s.MaxDailyGenerations,
		&s.ContentMinWords, &s.ContentMaxWords, &requireApproval, &s.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	s.AutoPublishEnabled = autoPublish != 0
	s.RequireAdminApproval = requireApproval != 0
	return s, nil
}

// SaveSettings validates and overwrites the singleton settings row.
func (db *DB) SaveSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := db.conn.Exec(
		`UPDATE settings SET
			auto_publish_enabled = ?, auto_publish_threshold = ?, max_daily_generations = ?,
			content_min_words = ?, content_max_words = ?, require_admin_approval = ?,
			updated_at = datetime('now')
		WHERE id = 1`,
		boolToInt(s.AutoPublishEnabled), s.AutoPublishThreshold, s.MaxDailyGenerations,
		s.ContentMinWords, s.ContentMaxWords, boolToInt(s.RequireAdminApproval),
	)
	return err
}

// Validate checks that every field is within range.
func (s Settings) Validate() error {
	if math.IsNaN(s.AutoPublishThreshold) || s.AutoPublishThreshold < 0 || s.AutoPublishThreshold > 1 {
		return fmt.Errorf("auto_publish_threshold must be between 0 and 1, got %v", s.AutoPublishThreshold)
	}
	if s.MaxDailyGenerations < 0 {
		return fmt.Errorf("max_daily_generations must not be negative, got %d", s.MaxDailyGenerations)
	}
	if s.ContentMinWords < 0 {
		return fmt.Errorf("content_min_words must not be negative, got %d", s.ContentMinWords)
	}
	if s.ContentMaxWords > 0 && s.ContentMinWords > s.ContentMaxWords {
		return fmt.Errorf("content_min_words (%d) exceeds content_max_words (%d)", s.ContentMinWords, s.ContentMaxWords)
	}
	if s.ContentMaxWords < 0 {
		return fmt.Errorf("content_max_words must not be negative, got %d", s.ContentMaxWords)
	}
	return nil
}
