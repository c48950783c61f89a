package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "movie-recommender/internal/common/errors"
	"movie-recommender/internal/common/validation"
	"movie-recommender/internal/service"
)

const (
	maxCount     = 100
	maxBodyBytes = 64 << 10
)

var (
	rateSchema = validation.MustCompile(`{
  "type": "object",
  "properties": {
    "user_id":  {"type": ["string", "integer"], "minLength": 1},
    "movie_id": {"type": ["string", "integer"], "minLength": 1},
    "rating":   {"type": "number", "minimum": 0.5, "maximum": 5}
  },
  "required": ["user_id", "movie_id", "rating"]
}`)

	viewSchema = validation.MustCompile(`{
  "type": "object",
  "properties": {
    "user_id":  {"type": ["string", "integer"], "minLength": 1},
    "movie_id": {"type": ["string", "integer"], "minLength": 1}
  },
  "required": ["user_id", "movie_id"]
}`)

	registerSchema = validation.MustCompile(`{
  "type": "object",
  "properties": {
    "preferred_genres":    {"type": "array", "items": {"type": "string"}, "maxItems": 50},
    "preferred_directors": {"type": "array", "items": {"type": "string"}, "maxItems": 50}
  }
}`)
)

// id accepts a JSON string or integer.
type id string

func (i *id) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*i = id(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = id(n.String())
	return nil
}

type rateBody struct {
	UserID  id      `json:"user_id"`
	MovieID id      `json:"movie_id"`
	Rating  float64 `json:"rating"`
}

type viewBody struct {
	UserID  id `json:"user_id"`
	MovieID id `json:"movie_id"`
}

type registerBody struct {
	PreferredGenres    []string `json:"preferred_genres"`
	PreferredDirectors []string `json:"preferred_directors"`
}

type errorBody struct {
	Success bool                         `json:"success"`
	Error   string                       `json:"error"`
	Code    string                       `json:"code,omitempty"`
	Details []validation.ValidationError `json:"details,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"demo_mode": h.svc.DemoMode(),
	})
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	count, ok := h.count(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, h.svc.Recommendations(r.Context(), service.RecommendationsRequest{
		UserID: strings.TrimSpace(q.Get("user_id")),
		Count:  count,
		Genres: splitList(q.Get("genres")),
	}))
}

func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	count, ok := h.count(w, r)
	if !ok {
		return
	}
	movieID := chi.URLParam(r, "movieID")
	writeJSON(w, http.StatusOK, h.svc.Similar(r.Context(), movieID, count, r.URL.Query().Get("user_id")))
}

func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	count, ok := h.count(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Popular(count))
}

func (h *Handler) Movie(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Movie(chi.URLParam(r, "movieID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	var body rateBody
	if !h.decode(w, r, rateSchema, &body) {
		return
	}
	resp, err := h.svc.Rate(r.Context(), service.RateRequest{
		UserID:  string(body.UserID),
		MovieID: string(body.MovieID),
		Rating:  body.Rating,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	var body viewBody
	if !h.decode(w, r, viewSchema, &body) {
		return
	}
	resp, err := h.svc.View(r.Context(), string(body.UserID), string(body.MovieID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !h.decode(w, r, registerSchema, &body) {
		return
	}
	resp, err := h.svc.Register(r.Context(), service.RegisterRequest{
		PreferredGenres:    body.PreferredGenres,
		PreferredDirectors: body.PreferredDirectors,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Preferences(r.Context(), chi.URLParam(r, "userID")))
}

func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Genres())
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	count, ok := h.count(w, r)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, apperrors.NewInvalidRequestError("query parameter q is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Search(r.Context(), query, count))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

// count parses ?count=. Absent means the service default (0).
func (h *Handler) count(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxCount {
		h.writeError(w, apperrors.NewInvalidRequestError("count must be an integer between 1 and 100"))
		return 0, false
	}
	return n, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema *validation.Schema, v interface{}) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, apperrors.NewInvalidRequestError("unreadable body"))
		return false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if res := schema.Validate(raw); !res.Valid {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   res.Error(),
			Code:    string(apperrors.ErrCodeInvalidRequest),
			Details: res.Errors,
		})
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		h.writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("request error", map[string]interface{}{"error": err, "status": status})
	}
	body := errorBody{Error: err.Error(), Code: string(apperrors.CodeOf(err))}
	if se, ok := apperrors.AsStandard(err); ok {
		body.Error = se.Message
		if status < 500 && se.Details != "" {
			body.Error += ": " + se.Details
		}
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case apperrors.ErrCodeMovieNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeServiceUnconfigured, apperrors.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeServiceAuthFailed, apperrors.ErrCodeServiceRejected, apperrors.ErrCodeServiceRequestFailed:
		return http.StatusBadGateway
	case apperrors.ErrCodeServiceTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
