package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/pipeline"
)

type queuePayload struct {
	Status   database.QueueStatus `json:"status"`
	PageType database.PageType    `json:"page_type"`
	BatchID  string               `json:"batch_id"`
	Limit    int                  `json:"limit"`
}

type settingPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type enqueuePayload struct {
	EntityType database.PageType `json:"entity_type"`
	EntityID   int64             `json:"entity_id"`
	User       *string           `json:"user"`
}

type generatePayload struct {
	EntityID int64   `json:"entity_id"`
	QueueID  *int64  `json:"queue_id"`
	User     *string `json:"user"`
}

type queueActionPayload struct {
	QueueID int64   `json:"queue_id"`
	Reason  *string `json:"reason"`
	User    *string `json:"user"`
}

type rollbackPayload struct {
	SeoPageID int64   `json:"seo_page_id"`
	VersionID int64   `json:"version_id"`
	User      *string `json:"user"`
}

type bulkPayload struct {
	EntityType database.PageType `json:"entity_type"`
	EntityIDs  []int64           `json:"entity_ids"`
	User       *string           `json:"user"`
}

type pagePayload struct {
	SeoPageID int64             `json:"seo_page_id"`
	PageType  database.PageType `json:"page_type"`
	Slug      string            `json:"slug"`
}

// EnqueueResult is the data of enqueue_page.
type EnqueueResult struct {
	Item    *database.QueueItem `json:"item"`
	Created bool                `json:"created"`
}

// PageResult is the data of publish_page and rollback_page.
type PageResult struct {
	Item *database.QueueItem `json:"item"`
	Page *database.SeoPage   `json:"page"`
}

func (h *Handler) getStats(_ context.Context, _ json.RawMessage) (any, error) {
	return h.db.GetStats()
}

func (h *Handler) getQueue(_ context.Context, raw json.RawMessage) (any, error) {
	var p queuePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.Status != "" && !p.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", p.Status)
	}
	if p.PageType != "" && !p.PageType.Valid() {
		return nil, fmt.Errorf("unknown page type %q", p.PageType)
	}
	items, err := h.db.ListQueueItems(database.QueueFilter{
		Status:   p.Status,
		PageType: p.PageType,
		BatchID:  p.BatchID,
		Limit:    p.Limit,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []database.QueueItem{}
	}
	return items, nil
}

func (h *Handler) getSettings(_ context.Context, _ json.RawMessage) (any, error) {
	return h.db.GetSettings()
}

func (h *Handler) updateSettings(_ context.Context, raw json.RawMessage) (any, error) {
	var p settingPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	s, err := h.db.GetSettings()
	if err != nil {
		return nil, err
	}
	if err := applySetting(&s, p.Key, p.Value); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidSettings, err)
	}
	if err := h.db.SaveSettings(s); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidSettings, err)
	}
	return h.db.GetSettings()
}

// applySetting sets one field of s from its JSON value.
func applySetting(s *database.Settings, key string, value json.RawMessage) error {
	if len(value) == 0 {
		return fmt.Errorf("missing value for %q", key)
	}
	var target any
	switch key {
	case "auto_publish_enabled":
		target = &s.AutoPublishEnabled
	case "auto_publish_threshold":
		target = &s.AutoPublishThreshold
	case "max_daily_generations":
		target = &s.MaxDailyGenerations
	case "content_min_words":
		target = &s.ContentMinWords
	case "content_max_words":
		target = &s.ContentMaxWords
	case "require_admin_approval":
		target = &s.RequireAdminApproval
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := json.Unmarshal(value, target); err != nil {
		return fmt.Errorf("bad value for %q: %v", key, err)
	}
	return nil
}

func (h *Handler) enqueuePage(_ context.Context, raw json.RawMessage) (any, error) {
	var p enqueuePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	item, created, err := h.pipe.Enqueue(pipeline.EnqueueRequest{
		PageType:    p.EntityType,
		EntityID:    p.EntityID,
		TriggeredBy: database.TriggerManual,
		User:        p.User,
	})
	if err != nil {
		return nil, err
	}
	return EnqueueResult{Item: item, Created: created}, nil
}

func (h *Handler) generateState(ctx context.Context, raw json.RawMessage) (any, error) {
	return h.generate(ctx, database.PageTypeState, raw)
}

func (h *Handler) generateCity(ctx context.Context, raw json.RawMessage) (any, error) {
	return h.generate(ctx, database.PageTypeCity, raw)
}

// generate runs the given queue item, or enqueues the entity first when no
// queue_id is supplied.
func (h *Handler) generate(ctx context.Context, pageType database.PageType, raw json.RawMessage) (any, error) {
	var p generatePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}

	var queueID int64
	if p.QueueID != nil {
		item, err := h.db.GetQueueItem(*p.QueueID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, fmt.Errorf("%w: %d", pipeline.ErrQueueItemNotFound, *p.QueueID)
		}
		if item.PageType != pageType || (p.EntityID != 0 && item.EntityID != p.EntityID) {
			return nil, fmt.Errorf("queue item %d is for %s %d", item.ID, item.PageType, item.EntityID)
		}
		queueID = item.ID
	} else {
		item, _, err := h.pipe.Enqueue(pipeline.EnqueueRequest{
			PageType:    pageType,
			EntityID:    p.EntityID,
			TriggeredBy: database.TriggerManual,
			User:        p.User,
		})
		if err != nil {
			return nil, err
		}
		queueID = item.ID
	}

	return h.pipe.Generate(ctx, queueID)
}

func (h *Handler) publishPage(_ context.Context, raw json.RawMessage) (any, error) {
	var p queueActionPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	item, page, err := h.pipe.Publish(p.QueueID, p.User)
	if err != nil {
		return nil, err
	}
	return PageResult{Item: item, Page: page}, nil
}

func (h *Handler) rejectPage(_ context.Context, raw json.RawMessage) (any, error) {
	var p queueActionPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	return h.pipe.Reject(p.QueueID, p.Reason)
}

func (h *Handler) rollbackPage(_ context.Context, raw json.RawMessage) (any, error) {
	var p rollbackPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	item, page, err := h.pipe.Rollback(p.SeoPageID, p.VersionID, p.User)
	if err != nil {
		return nil, err
	}
	return PageResult{Item: item, Page: page}, nil
}

func (h *Handler) bulkGenerate(ctx context.Context, raw json.RawMessage) (any, error) {
	var p bulkPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if len(p.EntityIDs) == 0 {
		return nil, errors.New("entity_ids is empty")
	}
	return h.pipe.Bulk(ctx, pipeline.BulkRequest{
		PageType:  p.EntityType,
		EntityIDs: p.EntityIDs,
		User:      p.User,
	})
}

func (h *Handler) listVersions(_ context.Context, raw json.RawMessage) (any, error) {
	var p pagePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	page, err := h.db.GetSeoPageByID(p.SeoPageID)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: %d", pipeline.ErrPageNotFound, p.SeoPageID)
	}
	versions, err := h.db.ListPageVersions(page.ID)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []database.PageVersion{}
	}
	return versions, nil
}

func (h *Handler) getPage(_ context.Context, raw json.RawMessage) (any, error) {
	var p pagePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	page, err := h.db.GetSeoPage(p.PageType, p.Slug)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("%w: %s %s", pipeline.ErrPageNotFound, p.PageType, p.Slug)
	}
	return page, nil
}
