// Package command exposes the pipeline through a single action-dispatch
// entry point. Every action answers with a Response envelope.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/TobiSchelling/geopages/internal/database"
	"github.com/TobiSchelling/geopages/internal/pipeline"
	"github.com/google/uuid"
)

// Action names one command.
type Action string

const (
	ActionGetStats             Action = "get_stats"
	ActionGetQueue             Action = "get_queue"
	ActionGetSettings          Action = "get_settings"
	ActionUpdateSettings       Action = "update_settings"
	ActionEnqueuePage          Action = "enqueue_page"
	ActionGenerateStateContent Action = "generate_state_content"
	ActionGenerateCityContent  Action = "generate_city_content"
	ActionPublishPage          Action = "publish_page"
	ActionRejectPage           Action = "reject_page"
	ActionRollbackPage         Action = "rollback_page"
	ActionBulkGenerate         Action = "bulk_generate"
	ActionListVersions         Action = "list_versions"
	ActionGetPage              Action = "get_page"
)

// Request is one command call.
type Request struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope every action returns. RequestID is unique per
// Dispatch call and appears in the failure log line.
type Response struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

type handlerFunc func(h *Handler, ctx context.Context, payload json.RawMessage) (any, error)

var handlers = map[Action]handlerFunc{
	ActionGetStats:             (*Handler).getStats,
	ActionGetQueue:             (*Handler).getQueue,
	ActionGetSettings:          (*Handler).getSettings,
	ActionUpdateSettings:       (*Handler).updateSettings,
	ActionEnqueuePage:          (*Handler).enqueuePage,
	ActionGenerateStateContent: (*Handler).generateState,
	ActionGenerateCityContent:  (*Handler).generateCity,
	ActionPublishPage:          (*Handler).publishPage,
	ActionRejectPage:           (*Handler).rejectPage,
	ActionRollbackPage:         (*Handler).rollbackPage,
	ActionBulkGenerate:         (*Handler).bulkGenerate,
	ActionListVersions:         (*Handler).listVersions,
	ActionGetPage:              (*Handler).getPage,
}

// Actions lists every known action, sorted.
func Actions() []Action {
	actions := make([]Action, 0, len(handlers))
	for a := range handlers {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := handlers[a]
	return ok
}

// Handler dispatches commands against one database and pipeline.
type Handler struct {
	db   *database.DB
	pipe *pipeline.Pipeline
}

// NewHandler creates a command handler.
func NewHandler(db *database.DB, pipe *pipeline.Pipeline) *Handler {
	return &Handler{db: db, pipe: pipe}
}

// Dispatch runs one command. Errors never escape: they are reported in the
// response.
func (h *Handler) Dispatch(ctx context.Context, req Request) Response {
	id := uuid.NewString()
	fn, ok := handlers[req.Action]
	if !ok {
		log.Printf("Command %s failed [%s]: unknown action", req.Action, id)
		return Response{RequestID: id, Error: fmt.Sprintf("unknown action %q", req.Action)}
	}
	data, err := fn(h, ctx, req.Payload)
	if err != nil {
		log.Printf("Command %s failed [%s]: %v", req.Action, id, err)
		return Response{RequestID: id, Error: err.Error()}
	}
	return Response{RequestID: id, Success: true, Data: data}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
