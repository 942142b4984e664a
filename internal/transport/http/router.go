package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"asq-order-service/internal/app"
	"asq-order-service/internal/domain"
	"asq-order-service/internal/plugin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LiveSessions lists sessions with connected sockets.
type LiveSessions interface {
	LiveSessions(ctx context.Context) ([]string, error)
}

// NewRouter wires the websocket endpoint and the JSON API.
func NewRouter(service *app.OrderService, hooks *plugin.Registry, hub *Hub, live LiveSessions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	ws := NewWSHandler(hub, hooks)
	api := &apiHandler{service: service, hooks: hooks, live: live}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/submissions", api.submit)
		r.Post("/presentations/{presentationID}/markup", api.define)
		r.Get("/sessions/live", api.liveSessions)
		r.Get("/sessions/{sessionID}/questions/{questionUID}/progress", api.progress)
		r.Get("/sessions/{sessionID}/presentations/{presentationID}/presenter", api.restorePresenter)
		r.Get("/sessions/{sessionID}/presentations/{presentationID}/viewers/{participantID}", api.restoreViewer)
	})
	return r
}

type apiHandler struct {
	service *app.OrderService
	hooks   *plugin.Registry
	live    LiveSessions
}

type markupRequest struct {
	HTML string `json:"html"`
}

type markupResponse struct {
	HTML      string   `json:"html"`
	Questions []string `json:"questions"`
}

func (h *apiHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req domain.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid submission payload")
		return
	}
	if req.QuestionUID == "" || req.Session == "" || req.Answeree == "" {
		writeError(w, r, http.StatusBadRequest, "questionUid, session and answeree are required")
		return
	}
	out, err := h.hooks.RunIngest(r.Context(), req)
	if err == nil && out.HandledBy == "" {
		err = domain.ErrUnhandledAnswer
	}
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"questionUid": req.QuestionUID})
}

func (h *apiHandler) define(w http.ResponseWriter, r *http.Request) {
	var req markupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid markup payload")
		return
	}
	doc, err := h.hooks.RunDefine(r.Context(), domain.Document{
		PresentationID: chi.URLParam(r, "presentationID"),
		HTML:           req.HTML,
	})
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	uids := make([]string, 0, len(doc.Questions))
	for _, q := range doc.Questions {
		uids = append(uids, q.UID)
	}
	writeJSON(w, http.StatusOK, markupResponse{HTML: doc.HTML, Questions: uids})
}

func (h *apiHandler) progress(w http.ResponseWriter, r *http.Request) {
	questionUID := chi.URLParam(r, "questionUID")
	entries, err := h.service.PresenterView(r.Context(), chi.URLParam(r, "sessionID"), questionUID)
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.ProgressEvent{
		QuestionType: domain.QuestionType,
		QuestionUID:  questionUID,
		Submissions:  entries,
	})
}

func (h *apiHandler) restorePresenter(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.PresenterReconnect(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "presentationID"))
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *apiHandler) restoreViewer(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.ViewerReconnect(r.Context(),
		chi.URLParam(r, "sessionID"), chi.URLParam(r, "presentationID"), chi.URLParam(r, "participantID"))
	if err != nil {
		writeError(w, r, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *apiHandler) liveSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.live.LiveSessions(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSchema):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedSubmission), errors.Is(err, domain.ErrUnhandledAnswer):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":     msg,
		"requestId": middleware.GetReqID(r.Context()),
	})
}
