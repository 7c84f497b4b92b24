package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/notify"
	"github.com/nyamedia/nyabot/core/logger"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	ledger   Ledger
	dir      Directory
	arrivals Arrivals
}

type errorBody struct {
	Error string `json:"error"`
}

type statusUpdate struct {
	RequestID int64          `json:"request_id"`
	NewStatus *domain.Status `json:"new_status"`
}

type statusResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type registrationView struct {
	Registered       bool    `json:"registered"`
	DatabaseUsername *string `json:"database_username"`
	Admin            bool    `json:"admin"`
}

type webhookAck struct {
	Outcome notify.Outcome `json:"outcome"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listPending(w http.ResponseWriter, r *http.Request) {
	views, err := h.ledger.ListPending(r.Context())
	h.writeViews(w, r, views, err)
}

func (h *handlers) listArchived(w http.ResponseWriter, r *http.Request) {
	views, err := h.ledger.ListArchived(r.Context())
	h.writeViews(w, r, views, err)
}

func (h *handlers) writeViews(w http.ResponseWriter, r *http.Request, views []domain.RequestView, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	if views == nil {
		views = []domain.RequestView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusUpdate
	if err := decodeJSON(r, &body); err != nil || body.RequestID <= 0 || body.NewStatus == nil {
		writeJSON(w, http.StatusBadRequest, statusResult{Message: "request_id and new_status are required"})
		return
	}
	req, err := h.ledger.Adjudicate(r.Context(), body.RequestID, *body.NewStatus)
	if err != nil {
		code, msg := statusFor(err)
		if code >= 500 {
			logger.Error(r.Context(), "http", "adjudicate",
				slog.Int64("request_id", body.RequestID),
				logger.Err(err),
			)
		}
		writeJSON(w, code, statusResult{Message: msg})
		return
	}
	writeJSON(w, http.StatusOK, statusResult{
		Success: true,
		Message: "request " + strconv.FormatInt(req.ID, 10) + " is now " + req.Status.String(),
	})
}

func (h *handlers) fetchMetadata(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.BatchFetchMissingMetadata(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) registration(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chat_id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid chat id"})
		return
	}
	reg, err := h.dir.Get(r.Context(), chatID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, registrationView{})
	case err != nil:
		writeError(w, r, err)
	default:
		name := reg.Username
		writeJSON(w, http.StatusOK, registrationView{Registered: true, DatabaseUsername: &name, Admin: reg.Admin})
	}
}

// webhook accepts media-server events as a JSON body or, as Emby posts them,
// as a multipart form whose "data" field holds the JSON.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	var ev notify.Event
	if err := decodeEvent(r, &ev); err != nil {
		logger.Warn(r.Context(), "http", "webhook.decode", logger.Err(err))
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed event"})
		return
	}
	outcome := h.arrivals.OnLibraryArrival(r.Context(), ev)
	writeJSON(w, http.StatusOK, webhookAck{Outcome: outcome})
}

func decodeEvent(r *http.Request, ev *notify.Event) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return err
		}
		return json.Unmarshal([]byte(r.FormValue("data")), ev)
	}
	return decodeJSON(r, ev)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// statusFor maps ledger errors to an HTTP status and a message safe to show.
func statusFor(err error) (int, string) {
	var persist *domain.PersistenceError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "request not found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "request is not pending or target status is not terminal"
	case errors.As(err, &persist):
		return http.StatusInternalServerError, "database error"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	if code >= 500 {
		logger.Error(r.Context(), "http", "handler", slog.String("route", routeTemplate(r)), logger.Err(err))
	}
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
