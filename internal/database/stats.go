package database

// GetStats returns aggregate counts of entities, pages and queue items.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{
		Pages: make(map[PageType]int),
		Queue: make(map[QueueStatus]int),
	}
	for _, st := range AllStatuses {
		s.Queue[st] = 0
	}

	rows, err := db.conn.Query(
		`SELECT entity_type, COUNT(*), SUM(is_active), SUM(page_exists)
		FROM geo_entities GROUP BY entity_type`,
	)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var entityType string
		var es EntityStats
		if err := rows.Scan(&entityType, &es.Total, &es.Active, &es.WithPages); err != nil {
			rows.Close()
			return nil, err
		}
		switch PageType(entityType) {
		case PageTypeState:
			s.States = es
		case PageTypeCity:
			s.Cities = es
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.Query(`SELECT page_type, COUNT(*) FROM seo_pages GROUP BY page_type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var pageType string
		var n int
		if err := rows.Scan(&pageType, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.Pages[PageType(pageType)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.Query(`SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.Queue[QueueStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM page_versions`).Scan(&s.Versions); err != nil {
		return nil, err
	}
	n, err := db.CountGenerationsToday()
	if err != nil {
		return nil, err
	}
	s.GenerationsToday = n
	return s, nil
}
