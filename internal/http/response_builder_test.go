package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusAccepted).
		Body([]byte("test")).
		Write(w)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger set without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerDatasetLoaded("ds-1", 12, 2).
		TriggerWarningNotification("2 rows skipped").
		Write(w)

	var triggers map[string]map[string]any
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}

	loaded := triggers[EventDatasetLoaded]
	if loaded["dataset_id"] != "ds-1" || loaded["transactions"] != float64(12) || loaded["skipped"] != float64(2) {
		t.Errorf("dataset:loaded payload = %v", loaded)
	}
	note := triggers[EventNotification]
	if note["type"] != "warning" || note["message"] != "2 rows skipped" {
		t.Errorf("notification payload = %v", note)
	}
}

func TestHTMXResponseBuilder_LastNotificationWins(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().
		TriggerDatasetCleared().
		TriggerErrorNotification("first").
		TriggerSuccessNotification("second").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, `"second"`) || strings.Contains(trigger, `"first"`) {
		t.Errorf("HX-Trigger = %s", trigger)
	}
	if !strings.Contains(trigger, `"dataset:cleared"`) {
		t.Errorf("HX-Trigger missing dataset:cleared: %s", trigger)
	}
}

func TestErrorResponse_EscapesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	UnprocessableEntityError(`<script>alert("x")</script>`).Write(w)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "<script>") {
		t.Errorf("message not escaped: %s", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}
