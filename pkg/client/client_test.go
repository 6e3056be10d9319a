package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/psilva81/inferq/pkg/models"
	"github.com/psilva81/inferq/pkg/scheduler"
)

func TestSubmit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/v1/analyses" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sekrit" {
			t.Errorf("Expected bearer key, got %q", r.Header.Get("Authorization"))
		}

		var sub models.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			t.Errorf("Failed to decode submit body: %v", err)
		}
		if sub.Payload != "transcripts/call-1.txt" || sub.Priority != "high" {
			t.Errorf("Unexpected submit body: %+v", sub)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"request_id": "req-42", "status": "queued"})
	}))
	defer server.Close()

	c := New(server.URL, "sekrit")
	id, err := c.Submit(&models.SubmitRequest{
		Payload:  "transcripts/call-1.txt",
		UserID:   "alice",
		Priority: "high",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if id != "req-42" {
		t.Errorf("Expected request id req-42, got %s", id)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Queue is full", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(server.URL, "")
	_, err := c.Submit(&models.SubmitRequest{Payload: "doc.txt"})
	if err == nil {
		t.Fatal("Expected error for full queue")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "Queue is full") {
		t.Errorf("Expected status and body in error, got: %v", err)
	}
}

func TestStatus(t *testing.T) {
	completed := time.Now().Round(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/analyses/req-42" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.RequestSnapshot{
			ID:          "req-42",
			Status:      models.StatusCompleted,
			Priority:    models.PriorityHigh,
			CompletedAt: &completed,
			Result:      &models.AnalysisResult{Summary: "all good"},
		})
	}))
	defer server.Close()

	c := New(server.URL, "")
	snap, err := c.Status("req-42")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.ID != "req-42" || snap.Status != models.StatusCompleted {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if snap.Result == nil || snap.Result.Summary != "all good" {
		t.Errorf("Unexpected result: %+v", snap.Result)
	}
}

func TestStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Request not found", http.StatusNotFound)
	}))
	defer server.Close()

	c := New(server.URL, "")
	_, err := c.Status("no-such-id")
	if err == nil {
		t.Fatal("Expected error for unknown request")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected status in error, got: %v", err)
	}
}

func TestCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("Expected DELETE, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"request_id": "req-42", "canceled": true})
	}))
	defer server.Close()

	c := New(server.URL, "")
	canceled, err := c.Cancel("req-42")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !canceled {
		t.Error("Expected canceled true")
	}
}

func TestStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stats" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(scheduler.Stats{
			Submitted:        10,
			Completed:        8,
			CurrentQueueSize: 2,
			LaneDepths:       map[string]int{"normal": 2},
		})
	}))
	defer server.Close()

	c := New(server.URL, "")
	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Submitted != 10 || stats.CurrentQueueSize != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCreateSessionAndSessionHeaders(t *testing.T) {
	var sawSessionHeaders bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions":
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			if req["user_id"] != "alice" {
				t.Errorf("Expected user_id alice, got %v", req)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Session{
				UserID:    "alice",
				Token:     "tok-1",
				ExpiresAt: time.Now().Add(time.Hour),
			})
		case "/api/v1/stats":
			if r.Header.Get("X-User-ID") == "alice" && r.Header.Get("X-Session-Token") == "tok-1" {
				sawSessionHeaders = true
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(scheduler.Stats{})
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := New(server.URL, "sekrit")
	session, err := c.CreateSession("alice")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Token != "tok-1" {
		t.Errorf("Unexpected session: %+v", session)
	}

	c.SetSession(session.UserID, session.Token)
	if _, err := c.Stats(); err != nil {
		t.Fatalf("Stats with session failed: %v", err)
	}
	if !sawSessionHeaders {
		t.Error("Expected session headers on subsequent requests")
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Health(); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}
