package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	applog "insights/internal/log"
)

// SessionCookie identifies the browser session a dataset belongs to.
const SessionCookie = "insights_session"

// sessionID returns the caller's session id, issuing a new cookie when the
// request has none or carries a malformed one.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// render executes a template into a buffer first so that a failing template
// never leaves a half written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any, resp *HTMXResponseBuilder) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path, "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed",
			"error", err,
			"template", name,
			applog.FieldOperation, applog.OpRender)
		InternalServerError("Could not render the page").Write(w)
		return
	}

	if resp == nil {
		resp = NewHTMXResponse()
	}
	resp.Header("Content-Type", "text/html; charset=utf-8").Body(buf.Bytes()).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
