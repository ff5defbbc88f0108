package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/google/uuid"
)

// BulkRequest runs the pipeline over many entities of one type.
type BulkRequest struct {
	PageType  database.PageType
	EntityIDs []int64
	User      *string
}

// BulkOutcome is the result for one entity of a bulk run.
type BulkOutcome struct {
	EntityID int64                `json:"entity_id"`
	QueueID  int64                `json:"queue_id,omitempty"`
	Status   database.QueueStatus `json:"status,omitempty"`
	Success  bool                 `json:"success"`
	Message  string               `json:"message,omitempty"`
}

// BulkResult summarizes a bulk run. Outcomes has one entry per requested
// entity, in request order.
type BulkResult struct {
	BatchID   string        `json:"batch_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Outcomes  []BulkOutcome `json:"outcomes"`
}

// Bulk enqueues and generates each entity in turn. A failing entity is
// recorded and the run moves on. Settings are read once for the whole batch.
func (p *Pipeline) Bulk(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if !req.PageType.Valid() {
		return nil, fmt.Errorf("unknown page type %q", req.PageType)
	}
	settings, err := p.db.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	batchID := uuid.NewString()
	r := &BulkResult{BatchID: batchID, Total: len(req.EntityIDs)}
	log.Printf("Bulk batch %s: %d %s entities", batchID, len(req.EntityIDs), req.PageType)

	for i, id := range req.EntityIDs {
		out := p.bulkOne(ctx, req, id, batchID, settings)
		if out.Success {
			r.Succeeded++
		} else {
			r.Failed++
			log.Printf("  [%d/%d] %s %d failed: %s", i+1, len(req.EntityIDs), req.PageType, id, out.Message)
		}
		r.Outcomes = append(r.Outcomes, out)
	}

	log.Printf("Bulk batch %s complete: %d succeeded, %d failed", batchID, r.Succeeded, r.Failed)
	return r, nil
}

func (p *Pipeline) bulkOne(ctx context.Context, req BulkRequest, entityID int64, batchID string, s database.Settings) BulkOutcome {
	out := BulkOutcome{EntityID: entityID}
	if err := ctx.Err(); err != nil {
		out.Message = "cancelled: " + err.Error()
		return out
	}

	item, _, err := p.Enqueue(EnqueueRequest{
		PageType:    req.PageType,
		EntityID:    entityID,
		TriggeredBy: database.TriggerBulk,
		User:        req.User,
		BatchID:     &batchID,
	})
	if err != nil {
		out.Message = err.Error()
		return out
	}
	out.QueueID = item.ID
	out.Status = item.Status

	res, err := p.advance(ctx, item, s)
	if err != nil {
		if latest, lerr := p.db.GetQueueItem(item.ID); lerr == nil && latest != nil {
			out.Status = latest.Status
		}
		out.Message = err.Error()
		return out
	}

	out.Status = res.Item.Status
	switch res.Item.Status {
	case database.StatusValidatedFailed:
		out.Message = strings.Join(res.Item.SeoValidationErrors, "; ")
	case database.StatusPublished, database.StatusAwaitingApproval, database.StatusGenerating:
		out.Success = true
		out.Message = string(res.Decision)
	default:
		out.Success = true
	}
	return out
}
