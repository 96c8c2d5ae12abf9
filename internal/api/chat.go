package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/chat"
)

const maxQuestionBytes = 64 << 10

type chatRequest struct {
	Question string `json:"question"`
}

type messageView struct {
	Role      chat.Role `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionView struct {
	ID        string            `json:"session_id"`
	StartedAt time.Time         `json:"started_at"`
	State     chat.State        `json:"state"`
	Turns     int               `json:"turns"`
	Messages  []messageView     `json:"messages"`
	Schema    chat.SchemaStatus `json:"schema"`
}

func handleSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat controller is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(deps, deps.Chat.Session()))
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat controller is not configured", false, nil)
		return
	}

	var req chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQuestionBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	turn, err := deps.Chat.Ask(r.Context(), req.Question)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrClosed):
			writeError(r.Context(), w, http.StatusServiceUnavailable, "SESSION_CLOSED", "chat session is closed", false, nil)
		case errors.Is(err, chat.ErrEmptyQuestion):
			writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_FAILED", err.Error(), true, nil)
		}
		return
	}

	response := map[string]any{
		"question":   turn.Question,
		"sql":        turn.SQL,
		"result":     turn.Result,
		"reply":      turn.Reply,
		"reply_html": deps.Markdown.Render(turn.Reply),
		"stages":     turn.Stages,
		"session":    renderSession(deps, deps.Chat.Session()),
	}
	if turn.Err != nil {
		response["error_kind"] = errorKind(turn.Err)
	}
	writeJSON(w, http.StatusOK, response)
}

func handleReset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat controller is not configured", false, nil)
		return
	}
	snapshot, err := deps.Chat.Reset(r.Context())
	if errors.Is(err, chat.ErrClosed) {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "SESSION_CLOSED", "chat session is closed", false, nil)
		return
	}
	response := map[string]any{"session": renderSession(deps, snapshot)}
	if err != nil {
		// The new session is live even when archiving the old one failed.
		response["archive_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat controller is not configured", false, nil)
		return
	}
	description := deps.Chat.Schema(r.Context())
	response := map[string]any{
		"available":  description.Available(),
		"tables":     description.Tables,
		"text":       description.Text,
		"fetched_at": description.FetchedAt,
	}
	if description.Err != nil {
		response["error"] = description.Err.Error()
	}
	writeJSON(w, http.StatusOK, response)
}

func renderSession(deps Dependencies, snapshot chat.Snapshot) sessionView {
	view := sessionView{
		ID:        snapshot.ID,
		StartedAt: snapshot.StartedAt,
		State:     snapshot.State,
		Turns:     snapshot.Turns,
		Messages:  make([]messageView, 0, len(snapshot.Messages)),
		Schema:    snapshot.Schema,
	}
	for _, message := range snapshot.Messages {
		item := messageView{Role: message.Role, Content: message.Content, CreatedAt: message.CreatedAt}
		if message.Role == chat.RoleAssistant {
			item.HTML = deps.Markdown.Render(message.Content)
		}
		view.Messages = append(view.Messages, item)
	}
	return view
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, chat.ErrSchemaUnavailable):
		return "schema_unavailable"
	case errors.Is(err, chat.ErrGeneration):
		return "generation"
	case errors.Is(err, chat.ErrQuery):
		return "query"
	default:
		return "unknown"
	}
}
