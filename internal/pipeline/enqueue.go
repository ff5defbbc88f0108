package pipeline

import (
	"fmt"
	"log"

	"github.com/TobiSchelling/geopages/internal/database"
)

// EnqueueRequest asks for a page to be generated for one geo entity.
type EnqueueRequest struct {
	PageType    database.PageType
	EntityID    int64
	TriggeredBy database.Trigger
	User        *string
	BatchID     *string
}

// Enqueue creates a pending queue item for the entity, or returns the live
// one if a request is already open. created reports which happened.
func (p *Pipeline) Enqueue(req EnqueueRequest) (item *database.QueueItem, created bool, err error) {
	if !req.PageType.Valid() {
		return nil, false, fmt.Errorf("unknown page type %q", req.PageType)
	}
	if err := p.reclaimStale(); err != nil {
		return nil, false, err
	}
	entity, err := p.db.GetGeoEntity(req.EntityID)
	if err != nil {
		return nil, false, err
	}
	if entity == nil || entity.EntityType != req.PageType {
		return nil, false, fmt.Errorf("%w: %s %d", ErrEntityNotFound, req.PageType, req.EntityID)
	}

	trigger := req.TriggeredBy
	if trigger == "" {
		trigger = database.TriggerManual
	}
	priority := p.opts.ManualPriority
	if trigger == database.TriggerBulk {
		priority = p.opts.BulkPriority
	}

	item, created, err = p.db.EnqueueQueueItem(database.NewQueueItem{
		PageType:        req.PageType,
		EntityID:        entity.ID,
		EntitySlug:      entity.Slug,
		ParentSlug:      entity.ParentSlug,
		TriggeredBy:     trigger,
		TriggeredByUser: req.User,
		Priority:        priority,
		BatchID:         req.BatchID,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Printf("Enqueued %s %s as queue item %d", req.PageType, entity.Slug, item.ID)
	} else {
		log.Printf("Reusing live queue item %d (%s) for %s %s", item.ID, item.Status, req.PageType, entity.Slug)
	}
	return item, created, nil
}
