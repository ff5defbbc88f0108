package database

import "github.com/TobiSchelling/geopages/internal/content"

// PageType identifies what kind of geo entity a page describes.
type PageType string

const (
	PageTypeState PageType = "state"
	PageTypeCity  PageType = "city"
)

// Valid reports whether t is a known page type.
func (t PageType) Valid() bool {
	return t == PageTypeState || t == PageTypeCity
}

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending          QueueStatus = "pending"
	StatusGenerating       QueueStatus = "generating"
	StatusGenerated        QueueStatus = "generated"
	StatusValidatedPassed  QueueStatus = "validated_passed"
	StatusValidatedFailed  QueueStatus = "validated_failed"
	StatusAwaitingApproval QueueStatus = "awaiting_approval"
	StatusPublished        QueueStatus = "published"
	StatusRejected         QueueStatus = "rejected"
	StatusRolledBack       QueueStatus = "rolled_back"
)

// LiveStatuses are the statuses in which a queue item still represents an
// open request for its entity. At most one row per entity may be live.
var LiveStatuses = []QueueStatus{
	StatusPending,
	StatusGenerating,
	StatusGenerated,
	StatusValidatedPassed,
	StatusAwaitingApproval,
}

// AllStatuses lists every queue status in lifecycle order.
var AllStatuses = []QueueStatus{
	StatusPending,
	StatusGenerating,
	StatusGenerated,
	StatusValidatedPassed,
	StatusValidatedFailed,
	StatusAwaitingApproval,
	StatusPublished,
	StatusRejected,
	StatusRolledBack,
}

// Valid reports whether s is a known status.
func (s QueueStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s QueueStatus) Terminal() bool {
	return s == StatusPublished || s == StatusRejected || s == StatusRolledBack
}

// Trigger records what created a queue item.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerBulk     Trigger = "bulk"
	TriggerRollback Trigger = "rollback"
)

// Edit sources recorded on a live page.
const (
	EditSourceAutoPublish   = "auto_publish"
	EditSourceManualPublish = "manual_publish"
	EditSourceRollback      = "rollback"
)

// SeoStatusLive is written to a geo entity once its page is published.
const SeoStatusLive = "live"

// QueueItem is one generation/publish request and its lifecycle state.
type QueueItem struct {
	ID                  int64             `json:"id"`
	PageType            PageType          `json:"page_type"`
	EntityID            int64             `json:"entity_id"`
	EntitySlug          string            `json:"entity_slug"`
	ParentSlug          *string           `json:"parent_slug"`
	Status              QueueStatus       `json:"status"`
	TriggeredBy         Trigger           `json:"triggered_by"`
	TriggeredByUser     *string           `json:"triggered_by_user"`
	Priority            int               `json:"priority"`
	BatchID             *string           `json:"batch_id"`
	Content             *content.Document `json:"content"`
	AIConfidenceScore   *float64          `json:"ai_confidence_score"`
	SeoValidationPassed *bool             `json:"seo_validation_passed"`
	SeoValidationErrors []string          `json:"seo_validation_errors"`
	GenerationAttempts  int               `json:"generation_attempts"`
	LastAttemptAt       *string           `json:"last_attempt_at"`
	ErrorMessage        *string           `json:"error_message"`
	RejectionReason     *string           `json:"rejection_reason"`
	ApprovedBy          *string           `json:"approved_by"`
	ApprovedAt          *string           `json:"approved_at"`
	PublishedAt         *string           `json:"published_at"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
}

// NewQueueItem holds the fields supplied when a request is enqueued.
type NewQueueItem struct {
	PageType        PageType
	EntityID        int64
	EntitySlug      string
	ParentSlug      *string
	TriggeredBy     Trigger
	TriggeredByUser *string
	Priority        int
	BatchID         *string
}

// QueueFilter narrows ListQueueItems. Zero values match everything.
type QueueFilter struct {
	Status   QueueStatus
	PageType PageType
	BatchID  string
	Limit    int
}

// SeoPage is the live landing page for one (page_type, slug).
type SeoPage struct {
	ID                    int64            `json:"id"`
	PageType              PageType         `json:"page_type"`
	Slug                  string           `json:"slug"`
	EntityID              int64            `json:"entity_id"`
	Content               content.Document `json:"content"`
	MetaTitle             string           `json:"meta_title"`
	MetaDescription       string           `json:"meta_description"`
	WordCount             int              `json:"word_count"`
	IsIndexed             bool             `json:"is_indexed"`
	LastContentEditSource string           `json:"last_content_edit_source"`
	CreatedAt             string           `json:"created_at"`
	UpdatedAt             string           `json:"updated_at"`
}

// PageVersion is an immutable snapshot of a page taken right before a
// publish overwrote it.
type PageVersion struct {
	ID                      int64            `json:"id"`
	SeoPageID               int64            `json:"seo_page_id"`
	Content                 content.Document `json:"content"`
	MetaTitle               string           `json:"meta_title"`
	MetaDescription         string           `json:"meta_description"`
	WordCount               int              `json:"word_count"`
	CapturedAt              string           `json:"captured_at"`
	SupersededByQueueItemID int64            `json:"superseded_by_queue_item_id"`
}

// GeoEntity is a state or city record.
type GeoEntity struct {
	ID         int64    `json:"id"`
	EntityType PageType `json:"entity_type"`
	Name       string   `json:"name"`
	Slug       string   `json:"slug"`
	ParentID   *int64   `json:"parent_id"`
	ParentName *string  `json:"parent_name"`
	ParentSlug *string  `json:"parent_slug"`
	IsActive   bool     `json:"is_active"`
	PageExists bool     `json:"page_exists"`
	SeoStatus  string   `json:"seo_status"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// Settings is the singleton pipeline configuration row.
type Settings struct {
	AutoPublishEnabled   bool    `json:"auto_publish_enabled"`
	AutoPublishThreshold float64 `json:"auto_publish_threshold"`
	MaxDailyGenerations  int     `json:"max_daily_generations"`
	ContentMinWords      int     `json:"content_min_words"`
	ContentMaxWords      int     `json:"content_max_words"`
	RequireAdminApproval bool    `json:"require_admin_approval"`
	UpdatedAt            string  `json:"updated_at,omitempty"`
}

// EntityStats counts geo entities of one type.
type EntityStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	WithPages int `json:"with_pages"`
}

// Stats contains aggregate pipeline statistics.
type Stats struct {
	States           EntityStats         `json:"states"`
	Cities           EntityStats         `json:"cities"`
	Pages            map[PageType]int    `json:"pages"`
	Versions         int                 `json:"versions"`
	Queue            map[QueueStatus]int `json:"queue"`
	GenerationsToday int                 `json:"generations_today"`
}
