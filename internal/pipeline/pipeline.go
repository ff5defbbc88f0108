package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TobiSchelling/geopages/internal/content"
	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/validate"
)

var (
	ErrEntityNotFound    = errors.New("geo entity not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAttemptsExhausted = errors.New("generation attempts exhausted")
	ErrDailyCapReached   = errors.New("daily generation cap reached")
	ErrQueueItemNotFound = errors.New("queue item not found")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrVersionNotFound   = database.ErrVersionNotFound
	ErrPageNotFound      = database.ErrPageNotFound
)

// DefaultActor is recorded as approver when a manual action names no user.
const DefaultActor = "admin"

// EntityInfo is the entity metadata handed to a content source.
type EntityInfo struct {
	PageType   database.PageType
	EntityID   int64
	Name       string
	Slug       string
	ParentName string
	ParentSlug string
	MinWords   int
	MaxWords   int
}

// Draft is what a content source returns for one entity.
type Draft struct {
	Content    content.Document
	Confidence float64
}

// ContentSource produces draft page content for a geo entity.
type ContentSource interface {
	Generate(ctx context.Context, e EntityInfo) (Draft, error)
}

// Options tunes attempt accounting and priorities.
type Options struct {
	MaxAttempts       int
	GenerationTimeout time.Duration
	ManualPriority    int
	BulkPriority      int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:       3,
		GenerationTimeout: 2 * time.Minute,
		ManualPriority:    10,
		BulkPriority:      0,
	}
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// GenerateResult is where a Generate call left the queue item.
type GenerateResult struct {
	Item     *database.QueueItem `json:"item"`
	Decision Decision            `json:"decision,omitempty"`
	Page     *database.SeoPage   `json:"page,omitempty"`
	Steps    []StepResult        `json:"steps"`
}

// Pipeline moves queue items from enqueue to publish.
type Pipeline struct {
	db     *database.DB
	source ContentSource
	opts   Options
	now    func() time.Time
}

// staleGrace is added to the generation timeout before a generating item is
// treated as abandoned.
const staleGrace = time.Minute

// New creates a new pipeline. Zero option fields take their defaults.
func New(db *database.DB, source ContentSource, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = def.GenerationTimeout
	}
	return &Pipeline{db: db, source: source, opts: opts, now: time.Now}
}

// Generate runs a queue item forward as far as it can go: generation,
// validation, then the publish decision. Items already past a step resume
// from where they are; items being generated elsewhere are left alone.
func (p *Pipeline) Generate(ctx context.Context, queueID int64) (*GenerateResult, error) {
	if err := p.reclaimStale(); err != nil {
		return nil, err
	}
	item, err := p.loadItem(queueID)
	if err != nil {
		return nil, err
	}
	settings, err := p.db.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return p.advance(ctx, item, settings)
}

func (p *Pipeline) advance(ctx context.Context, item *database.QueueItem, s database.Settings) (*GenerateResult, error) {
	if item.Status.Terminal() {
		return nil, fmt.Errorf("%w: queue item %d is %s", ErrInvalidTransition, item.ID, item.Status)
	}

	r := &GenerateResult{Item: item}
	var err error

	if item.Status == database.StatusPending || item.Status == database.StatusValidatedFailed {
		log.Printf("Generating content for %s %s (queue item %d)...", item.PageType, item.EntitySlug, item.ID)
		item, err = p.generate(ctx, item, s)
		if err != nil {
			return nil, err
		}
		r.Item = item
		r.Steps = append(r.Steps, StepResult{
			Name:    "Generate",
			Summary: fmt.Sprintf("Status %s after %d attempt(s)", item.Status, item.GenerationAttempts),
		})
	}

	if item.Status == database.StatusGenerated {
		item, err = p.validate(item, s)
		if err != nil {
			return nil, err
		}
		r.Item = item
		summary := "Validation passed"
		if item.Status == database.StatusValidatedFailed {
			summary = "Validation failed: " + strings.Join(item.SeoValidationErrors, "; ")
		}
		r.Steps = append(r.Steps, StepResult{Name: "Validate", Summary: summary})
	}

	if item.Status == database.StatusValidatedPassed {
		decision, page, next, err := p.decide(item, s)
		if next != nil {
			r.Item = next
		}
		r.Decision = decision
		r.Page = page
		if err != nil {
			return nil, err
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    "Decide",
			Summary: fmt.Sprintf("Decision %s, status %s", decision, r.Item.Status),
		})
	}

	if item.Status == database.StatusGenerating {
		log.Printf("Queue item %d is being generated elsewhere, leaving it", item.ID)
	}
	return r, nil
}

// generate makes one generation attempt. A failed attempt is recorded on the
// row and returned as an error.
func (p *Pipeline) generate(ctx context.Context, item *database.QueueItem, s database.Settings) (*database.QueueItem, error) {
	if item.Status == database.StatusValidatedFailed && item.ErrorMessage != nil &&
		strings.HasPrefix(*item.ErrorMessage, database.GenerationFailedPrefix) {
		return nil, fmt.Errorf("%w: queue item %d", ErrAttemptsExhausted, item.ID)
	}
	if item.GenerationAttempts >= p.opts.MaxAttempts {
		return nil, fmt.Errorf("%w: queue item %d used %d of %d", ErrAttemptsExhausted, item.ID, item.GenerationAttempts, p.opts.MaxAttempts)
	}

	if s.MaxDailyGenerations > 0 {
		n, err := p.db.CountGenerationsToday()
		if err != nil {
			return nil, fmt.Errorf("counting generations: %w", err)
		}
		if n >= s.MaxDailyGenerations {
			return nil, fmt.Errorf("%w: %d of %d used today", ErrDailyCapReached, n, s.MaxDailyGenerations)
		}
	}

	entity, err := p.db.GetGeoEntity(item.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrEntityNotFound, item.PageType, item.EntityID)
	}

	if item.Status == database.StatusValidatedFailed {
		if err := p.db.TransitionStatus(item.ID, []database.QueueStatus{database.StatusValidatedFailed}, database.StatusPending); err != nil {
			return p.handleStale(item.ID, err)
		}
	}
	if err := p.db.TransitionStatus(item.ID, []database.QueueStatus{database.StatusPending}, database.StatusGenerating); err != nil {
		return p.handleStale(item.ID, err)
	}

	genCtx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
	defer cancel()

	draft, genErr := p.callSource(genCtx, entityInfo(item, entity, s))
	if genErr != nil {
		msg := genErr.Error()
		if errors.Is(genErr, context.DeadlineExceeded) {
			msg = fmt.Sprintf("generation timed out after %s", p.opts.GenerationTimeout)
		}
		status, err := p.db.RecordGenerationFailure(item.ID, msg, p.opts.MaxAttempts)
		if err != nil {
			if _, serr := p.handleStale(item.ID, err); serr != nil {
				return nil, serr
			}
			return nil, fmt.Errorf("generating %s %s: %s", item.PageType, item.EntitySlug, msg)
		}
		log.Printf("Generation failed for queue item %d (%s): %s", item.ID, status, msg)
		if status == database.StatusValidatedFailed {
			return nil, fmt.Errorf("%w: %s %s: %s", ErrAttemptsExhausted, item.PageType, item.EntitySlug, msg)
		}
		return nil, fmt.Errorf("generating %s %s: %s", item.PageType, item.EntitySlug, msg)
	}

	doc := draft.Content
	doc.Normalize()
	if err := p.db.RecordGenerationSuccess(item.ID, doc, clampConfidence(draft.Confidence)); err != nil {
		return p.handleStale(item.ID, err)
	}
	return p.loadItem(item.ID)
}

// reclaimStale returns items left in generating by a crashed or failed run to
// the retry path, counting the lost call as a failed attempt.
func (p *Pipeline) reclaimStale() error {
	cutoff := p.now().Add(-(p.opts.GenerationTimeout + staleGrace))
	ids, err := p.db.ReclaimStaleGenerations(cutoff, "generation abandoned", p.opts.MaxAttempts)
	if err != nil {
		return fmt.Errorf("reclaiming stale generations: %w", err)
	}
	for _, id := range ids {
		log.Printf("Reclaimed queue item %d stuck in generating", id)
	}
	return nil
}

// callSource guards against a source that ignores its context.
func (p *Pipeline) callSource(ctx context.Context, e EntityInfo) (Draft, error) {
	type result struct {
		draft Draft
		err   error
	}
	done := make(chan result, 1)
	go func() {
		d, err := p.source.Generate(ctx, e)
		done <- result{d, err}
	}()
	select {
	case r := <-done:
		return r.draft, r.err
	case <-ctx.Done():
		return Draft{}, ctx.Err()
	}
}

func (p *Pipeline) validate(item *database.QueueItem, s database.Settings) (*database.QueueItem, error) {
	entity, err := p.db.GetGeoEntity(item.EntityID)
	if err != nil {
		return nil, err
	}
	errs := validate.Validate(validate.Input{
		PageType: item.PageType,
		Slug:     item.EntitySlug,
		Content:  item.Content,
		Entity:   entity,
	}, s)
	if err := p.db.RecordValidation(item.ID, errs); err != nil {
		return p.handleStale(item.ID, err)
	}
	if len(errs) > 0 {
		log.Printf("Queue item %d failed validation: %s", item.ID, strings.Join(errs, "; "))
	}
	return p.loadItem(item.ID)
}

func (p *Pipeline) decide(item *database.QueueItem, s database.Settings) (Decision, *database.SeoPage, *database.QueueItem, error) {
	decision, err := Decide(item, s)
	if err != nil {
		note := err.Error()
		if herr := p.db.HoldForApproval(item.ID, &note); herr != nil && !errors.Is(herr, database.ErrStaleStatus) {
			return DecisionAwaitApproval, nil, nil, herr
		}
		next, _ := p.loadItem(item.ID)
		return DecisionAwaitApproval, nil, next, err
	}

	switch decision {
	case DecisionAutoPublish:
		page, err := p.publish(item, []database.QueueStatus{database.StatusValidatedPassed}, nil, database.EditSourceAutoPublish)
		if err != nil {
			if errors.Is(err, database.ErrStaleStatus) {
				next, lerr := p.handleStale(item.ID, err)
				return decision, nil, next, lerr
			}
			return decision, nil, nil, err
		}
		log.Printf("Auto-published %s %s", item.PageType, item.EntitySlug)
		next, err := p.loadItem(item.ID)
		return decision, page, next, err
	case DecisionAwaitApproval:
		if err := p.db.HoldForApproval(item.ID, nil); err != nil {
			next, lerr := p.handleStale(item.ID, err)
			return decision, nil, next, lerr
		}
		next, err := p.loadItem(item.ID)
		return decision, nil, next, err
	default:
		return decision, nil, item, nil
	}
}

// Publish is the manual approval path: it publishes an item that passed
// validation and records the acting user as approver.
func (p *Pipeline) Publish(queueID int64, user *string) (*database.QueueItem, *database.SeoPage, error) {
	item, err := p.loadItem(queueID)
	if err != nil {
		return nil, nil, err
	}
	from := []database.QueueStatus{database.StatusValidatedPassed, database.StatusAwaitingApproval}
	if !containsStatus(from, item.Status) {
		return nil, nil, fmt.Errorf("%w: cannot publish queue item %d from %s", ErrInvalidTransition, item.ID, item.Status)
	}
	if item.SeoValidationPassed == nil || !*item.SeoValidationPassed {
		return nil, nil, fmt.Errorf("%w: queue item %d has not passed validation", ErrInvalidTransition, item.ID)
	}

	approver := actor(user)
	page, err := p.publish(item, from, &approver, database.EditSourceManualPublish)
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			next, lerr := p.handleStale(item.ID, err)
			return next, nil, lerr
		}
		return nil, nil, err
	}
	log.Printf("Published %s %s (approved by %s)", item.PageType, item.EntitySlug, approver)

	next, err := p.loadItem(item.ID)
	return next, page, err
}

func (p *Pipeline) publish(item *database.QueueItem, from []database.QueueStatus, approvedBy *string, source string) (*database.SeoPage, error) {
	if item.Content == nil {
		return nil, fmt.Errorf("queue item %d has no content", item.ID)
	}
	entity, err := p.db.GetGeoEntity(item.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrEntityNotFound, item.PageType, item.EntityID)
	}

	doc := *item.Content
	page, err := p.db.PublishQueueItem(database.PublishParams{
		QueueItemID:     item.ID,
		From:            from,
		Content:         doc,
		MetaTitle:       metaTitle(doc, entity),
		MetaDescription: metaDescription(doc),
		WordCount:       doc.WordCount(),
		ApprovedBy:      approvedBy,
		EditSource:      source,
	})
	if err != nil {
		if errors.Is(err, database.ErrStaleStatus) {
			return nil, err
		}
		return nil, fmt.Errorf("publishing queue item %d: %w", item.ID, err)
	}
	return page, nil
}

// Reject closes a post-generation item without touching live content.
func (p *Pipeline) Reject(queueID int64, reason *string) (*database.QueueItem, error) {
	item, err := p.loadItem(queueID)
	if err != nil {
		return nil, err
	}
	from := []database.QueueStatus{
		database.StatusValidatedPassed,
		database.StatusValidatedFailed,
		database.StatusAwaitingApproval,
	}
	if !containsStatus(from, item.Status) {
		return nil, fmt.Errorf("%w: cannot reject queue item %d from %s", ErrInvalidTransition, item.ID, item.Status)
	}
	if err := p.db.RejectQueueItem(item.ID, reason); err != nil {
		return p.handleStale(item.ID, err)
	}
	log.Printf("Rejected queue item %d (%s %s)", item.ID, item.PageType, item.EntitySlug)
	return p.loadItem(item.ID)
}

// Rollback restores a page from one of its versions. The action is recorded
// as a new published queue item.
func (p *Pipeline) Rollback(pageID, versionID int64, user *string) (*database.QueueItem, *database.SeoPage, error) {
	acting := actor(user)
	item, page, err := p.db.RollbackPage(pageID, versionID, &acting)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Rolled back %s %s to version %d", page.PageType, page.Slug, versionID)
	return item, page, nil
}

func (p *Pipeline) loadItem(id int64) (*database.QueueItem, error) {
	item, err := p.db.GetQueueItem(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %d", ErrQueueItemNotFound, id)
	}
	return item, nil
}

// handleStale turns a lost optimistic race into a no-op returning the row as
// the winner left it. Other errors pass through.
func (p *Pipeline) handleStale(id int64, err error) (*database.QueueItem, error) {
	if !errors.Is(err, database.ErrStaleStatus) {
		return nil, err
	}
	item, lerr := p.loadItem(id)
	if lerr != nil {
		return nil, lerr
	}
	log.Printf("Queue item %d already transitioned (now %s)", id, item.Status)
	return item, nil
}

func entityInfo(item *database.QueueItem, e *database.GeoEntity, s database.Settings) EntityInfo {
	info := EntityInfo{
		PageType: item.PageType,
		EntityID: e.ID,
		Name:     e.Name,
		Slug:     e.Slug,
		MinWords: s.ContentMinWords,
		MaxWords: s.ContentMaxWords,
	}
	if e.ParentName != nil {
		info.ParentName = *e.ParentName
	}
	if e.ParentSlug != nil {
		info.ParentSlug = *e.ParentSlug
	}
	return info
}

func metaTitle(doc content.Document, e *database.GeoEntity) string {
	if doc.Title != "" {
		return doc.Title
	}
	if e.ParentName != nil {
		return fmt.Sprintf("Dentists in %s, %s", e.Name, *e.ParentName)
	}
	return "Dentists in " + e.Name
}

func metaDescription(doc content.Document) string {
	if doc.MetaDescription != "" {
		return doc.MetaDescription
	}
	return doc.Summary(155)
}

func actor(user *string) string {
	if user == nil || strings.TrimSpace(*user) == "" {
		return DefaultActor
	}
	return strings.TrimSpace(*user)
}

func clampConfidence(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func containsStatus(statuses []database.QueueStatus, s database.QueueStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}
