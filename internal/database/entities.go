package database

import (
	"database/sql"
	"fmt"
)

const entityColumns = `e.id, e.entity_type, e.name, e.slug, e.parent_id, p.name, p.slug,
	e.is_active, e.page_exists, e.seo_status, e.created_at, e.updated_at`

const entityFrom = `FROM geo_entities e LEFT JOIN geo_entities p ON p.id = e.parent_id`

// InsertGeoEntity creates a state or city record. Cities may reference a
// parent state.
func (db *DB) InsertGeoEntity(entityType PageType, name, slug string, parentID *int64) (int64, error) {
	if !entityType.Valid() {
		return 0, fmt.Errorf("invalid entity type %q", entityType)
	}
	result, err := db.conn.Exec(
		`INSERT INTO geo_entities (entity_type, name, slug, parent_id) VALUES (?, ?, ?, ?)`,
		string(entityType), name, slug, parentID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetGeoEntity returns an entity by ID, or nil if it does not exist.
func (db *DB) GetGeoEntity(id int64) (*GeoEntity, error) {
	row := db.conn.QueryRow(`SELECT `+entityColumns+` `+entityFrom+` WHERE e.id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// GetGeoEntityBySlug returns an entity by type and slug, or nil.
func (db *DB) GetGeoEntityBySlug(entityType PageType, slug string) (*GeoEntity, error) {
	row := db.conn.QueryRow(
		`SELECT `+entityColumns+` `+entityFrom+` WHERE e.entity_type = ? AND e.slug = ?`,
		string(entityType), slug,
	)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListGeoEntities returns all entities of a type ordered by name. An empty
// type lists everything.
func (db *DB) ListGeoEntities(entityType PageType) ([]GeoEntity, error) {
	query := `SELECT ` + entityColumns + ` ` + entityFrom
	var args []any
	if entityType != "" {
		query += ` WHERE e.entity_type = ?`
		args = append(args, string(entityType))
	}
	query += ` ORDER BY e.entity_type DESC, e.name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []GeoEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// SetGeoEntityActive toggles whether an entity may receive a page.
func (db *DB) SetGeoEntityActive(id int64, active bool) error {
	_, err := db.conn.Exec(
		`UPDATE geo_entities SET is_active = ?, updated_at = datetime('now') WHERE id = ?`,
		boolToInt(active), id,
	)
	return err
}

// markPageLive is the narrow write-back channel into the geo entity
// reference. It only runs inside the publish transaction.
func markPageLive(tx *sql.Tx, entityID int64) error {
	result, err := tx.Exec(
		`UPDATE geo_entities SET page_exists = 1, seo_status = ?, updated_at = datetime('now') WHERE id = ?`,
		SeoStatusLive, entityID,
	)
	if err != nil {
		return fmt.Errorf("updating geo entity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("geo entity %d not found", entityID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*GeoEntity, error) {
	var e GeoEntity
	var entityType string
	var active, pageExists int
	if err := row.Scan(&e.ID, &entityType, &e.Name, &e.Slug, &e.ParentID, &e.ParentName, &e.ParentSlug,
		&active, &pageExists, &e.SeoStatus, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.EntityType = PageType(entityType)
	e.IsActive = active != 0
	e.PageExists = pageExists != 0
	return &e, nil
}
