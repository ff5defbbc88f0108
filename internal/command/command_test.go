package command

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/geopages/internal/content"
	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/pipeline"
)

type staticSource struct {
	confidence float64
	words      int
}

func (s staticSource) Generate(_ context.Context, e pipeline.EntityInfo) (pipeline.Draft, error) {
	return pipeline.Draft{
		Content: content.Document{
			Title: "Dentists in " + e.Name,
			Intro: "Find a dentist.",
			Sections: []content.Section{
				{Heading: "Care", Level: 2, Body: strings.TrimSpace(strings.Repeat("word ", s.words-3))},
			},
		},
		Confidence: s.confidence,
	}, nil
}

type env struct {
	db    *database.DB
	h     *Handler
	state int64
	city  int64
}

func newEnv(t *testing.T, src staticSource) *env {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	state, err := db.InsertGeoEntity(database.PageTypeState, "Illinois", "illinois", nil)
	require.NoError(t, err)
	city, err := db.InsertGeoEntity(database.PageTypeCity, "Springfield", "springfield", &state)
	require.NoError(t, err)

	pipe := pipeline.New(db, src, pipeline.DefaultOptions())
	return &env{db: db, h: NewHandler(db, pipe), state: state, city: city}
}

func (e *env) call(t *testing.T, action Action, payload any) Response {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	return e.h.Dispatch(context.Background(), Request{Action: action, Payload: raw})
}

func (e *env) set(t *testing.T, key string, value any) {
	t.Helper()
	resp := e.call(t, ActionUpdateSettings, map[string]any{"key": key, "value": value})
	require.True(t, resp.Success, resp.Error)
}

func TestUnknownAction(t *testing.T) {
	e := newEnv(t, staticSource{confidence: 0.9, words: 600})
	resp := e.h.Dispatch(context.Background(), Request{Action: "drop_tables"})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unknown action")
	require.False(t, Action("drop_tables").Valid())
	require.True(t, ActionPublishPage.Valid())
	require.Len(t, Actions(), 13)
}

func TestResponsesCarryRequestID(t *testing.T) {
	e := newEnv(t, staticSource{})

	ok := e.call(t, ActionGetSettings, nil)
	require.True(t, ok.Success)
	_, err := uuid.Parse(ok.RequestID)
	require.NoError(t, err)

	failed := e.call(t, ActionPublishPage, map[string]any{"queue_id": 77})
	require.False(t, failed.Success)
	_, err = uuid.Parse(failed.RequestID)
	require.NoError(t, err)
	require.NotEqual(t, ok.RequestID, failed.RequestID)

	unknown := e.h.Dispatch(context.Background(), Request{Action: "drop_tables"})
	require.NotEmpty(t, unknown.RequestID)
}

func TestSettingsRoundTrip(t *testing.T) {
	e := newEnv(t, staticSource{})

	resp := e.call(t, ActionGetSettings, nil)
	require.True(t, resp.Success)
	s := resp.Data.(database.Settings)
	require.True(t, s.RequireAdminApproval)

	e.set(t, "auto_publish_threshold", 0.7)
	e.set(t, "require_admin_approval", false)

	resp = e.call(t, ActionGetSettings, nil)
	s = resp.Data.(database.Settings)
	require.Equal(t, 0.7, s.AutoPublishThreshold)
	require.False(t, s.RequireAdminApproval)
}

func TestUpdateSettingsRejectsBadInput(t *testing.T) {
	e := newEnv(t, staticSource{})

	cases := []map[string]any{
		{"key": "colour", "value": "blue"},
		{"key": "auto_publish_threshold", "value": 1.2},
		{"key": "auto_publish_threshold", "value": "high"},
		{"key": "max_daily_generations", "value": -1},
		{"key": "content_min_words", "value": 999999},
		{"key": "content_min_words"},
	}
	for _, payload := range cases {
		resp := e.call(t, ActionUpdateSettings, payload)
		require.False(t, resp.Success, "%v", payload)
		require.Contains(t, resp.Error, pipeline.ErrInvalidSettings.Error())
	}

	resp := e.call(t, ActionGetSettings, nil)
	require.Equal(t, 0.85, resp.Data.(database.Settings).AutoPublishThreshold)
}

func TestEnqueueAndQueue(t *testing.T) {
	e := newEnv(t, staticSource{})

	resp := e.call(t, ActionEnqueuePage, map[string]any{"entity_type": "city", "entity_id": e.city})
	require.True(t, resp.Success, resp.Error)
	first := resp.Data.(EnqueueResult)
	require.True(t, first.Created)

	resp = e.call(t, ActionEnqueuePage, map[string]any{"entity_type": "city", "entity_id": e.city})
	require.True(t, resp.Success)
	second := resp.Data.(EnqueueResult)
	require.False(t, second.Created)
	require.Equal(t, first.Item.ID, second.Item.ID)

	resp = e.call(t, ActionEnqueuePage, map[string]any{"entity_type": "city", "entity_id": 404})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, pipeline.ErrEntityNotFound.Error())

	resp = e.call(t, ActionGetQueue, map[string]any{"status": "pending"})
	require.True(t, resp.Success)
	require.Len(t, resp.Data.([]database.QueueItem), 1)

	resp = e.call(t, ActionGetQueue, map[string]any{"status": "published"})
	require.True(t, resp.Success)
	require.Empty(t, resp.Data.([]database.QueueItem))

	resp = e.call(t, ActionGetQueue, map[string]any{"status": "bogus"})
	require.False(t, resp.Success)
}

func TestMalformedPayload(t *testing.T) {
	e := newEnv(t, staticSource{})
	resp := e.h.Dispatch(context.Background(), Request{Action: ActionEnqueuePage, Payload: json.RawMessage(`{"entity_id": "x"}`)})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "invalid payload")

	resp = e.h.Dispatch(context.Background(), Request{Action: ActionEnqueuePage, Payload: json.RawMessage(`{"entityid": 1}`)})
	require.False(t, resp.Success)
}

func TestGenerateAwaitThenPublish(t *testing.T) {
	e := newEnv(t, staticSource{confidence: 0.9, words: 600})

	resp := e.call(t, ActionGenerateCityContent, map[string]any{"entity_id": e.city})
	require.True(t, resp.Success, resp.Error)
	res := resp.Data.(*pipeline.GenerateResult)
	require.Equal(t, database.StatusAwaitingApproval, res.Item.Status)

	resp = e.call(t, ActionPublishPage, map[string]any{"queue_id": res.Item.ID, "user": "dana"})
	require.True(t, resp.Success, resp.Error)
	published := resp.Data.(PageResult)
	require.Equal(t, database.StatusPublished, published.Item.Status)
	require.Equal(t, "dana", *published.Item.ApprovedBy)

	resp = e.call(t, ActionGetPage, map[string]any{"page_type": "city", "slug": "springfield"})
	require.True(t, resp.Success, resp.Error)
	require.Equal(t, "Dentists in Springfield", resp.Data.(*database.SeoPage).MetaTitle)

	resp = e.call(t, ActionPublishPage, map[string]any{"queue_id": res.Item.ID})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, pipeline.ErrInvalidTransition.Error())
}

func TestGenerateWithQueueID(t *testing.T) {
	e := newEnv(t, staticSource{confidence: 0.9, words: 600})

	resp := e.call(t, ActionEnqueuePage, map[string]any{"entity_type": "state", "entity_id": e.state})
	require.True(t, resp.Success)
	item := resp.Data.(EnqueueResult).Item

	resp = e.call(t, ActionGenerateCityContent, map[string]any{"entity_id": e.state, "queue_id": item.ID})
	require.False(t, resp.Success)

	resp = e.call(t, ActionGenerateStateContent, map[string]any{"entity_id": e.state, "queue_id": item.ID})
	require.True(t, resp.Success, resp.Error)
	require.Equal(t, item.ID, resp.Data.(*pipeline.GenerateResult).Item.ID)
}

func TestRejectPage(t *testing.T) {
	e := newEnv(t, staticSource{confidence: 0.9, words: 600})
	resp := e.call(t, ActionGenerateCityContent, map[string]any{"entity_id": e.city})
	require.True(t, resp.Success, resp.Error)
	id := resp.Data.(*pipeline.GenerateResult).Item.ID

	resp = e.call(t, ActionRejectPage, map[string]any{"queue_id": id, "reason": "duplicate"})
	require.True(t, resp.Success, resp.Error)
	item := resp.Data.(*database.QueueItem)
	require.Equal(t, database.StatusRejected, item.Status)
	require.Equal(t, "duplicate", *item.RejectionReason)
}

func TestRollbackAndVersions(t *testing.T) {
	e := newEnv(t, staticSource{confidence: 0.95, words: 600})
	e.set(t, "require_admin_approval", false)
	e.set(t, "auto_publish_enabled", true)

	for i := 0; i < 2; i++ {
		resp := e.call(t, ActionGenerateCityContent, map[string]any{"entity_id": e.city})
		require.True(t, resp.Success, resp.Error)
		require.Equal(t, database.StatusPublished, resp.Data.(*pipeline.GenerateResult).Item.Status)
	}

	page, err := e.db.GetSeoPage(database.PageTypeCity, "springfield")
	require.NoError(t, err)

	resp := e.call(t, ActionListVersions, map[string]any{"seo_page_id": page.ID})
	require.True(t, resp.Success, resp.Error)
	versions := resp.Data.([]database.PageVersion)
	require.Len(t, versions, 1)

	resp = e.call(t, ActionRollbackPage, map[string]any{"seo_page_id": page.ID, "version_id": versions[0].ID, "user": "sam"})
	require.True(t, resp.Success, resp.Error)
	rb := resp.Data.(PageResult)
	require.Equal(t, database.TriggerRollback, rb.Item.TriggeredBy)
	require.Equal(t, versions[0].Content, rb.Page.Content)

	resp = e.call(t, ActionRollbackPage, map[string]any{"seo_page_id": page.ID, "version_id": 999})
	require.False(t, resp.Success)

	resp = e.call(t, ActionListVersions, map[string]any{"seo_page_id": 999})
	require.False(t, resp.Success)
}

func TestBulkGenerateAndStats(t *testing.T) {
	e := newEnv(t, staticSource{confidence: 0.9, words: 600})

	resp := e.call(t, ActionBulkGenerate, map[string]any{"entity_type": "city", "entity_ids": []int64{e.city, 31337}})
	require.True(t, resp.Success, resp.Error)
	bulk := resp.Data.(*pipeline.BulkResult)
	require.Equal(t, 2, bulk.Total)
	require.Equal(t, 1, bulk.Succeeded)
	require.Equal(t, 1, bulk.Failed)

	resp = e.call(t, ActionBulkGenerate, map[string]any{"entity_type": "city", "entity_ids": []int64{}})
	require.False(t, resp.Success)

	resp = e.call(t, ActionGetStats, nil)
	require.True(t, resp.Success, resp.Error)
	stats := resp.Data.(*database.Stats)
	require.Equal(t, 1, stats.Cities.Total)
	require.Equal(t, 1, stats.Queue[database.StatusAwaitingApproval])
	require.Equal(t, 1, stats.GenerationsToday)
}
