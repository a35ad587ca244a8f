package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookPostsSummary(t *testing.T) {
	received := make(chan Summary, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s Summary
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received <- s
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL)
	hook.RunFinished(Summary{
		TaskID:  "t1",
		Status:  "completed",
		Total:   3,
		Success: 2,
		Skipped: 1,
	})

	select {
	case got := <-received:
		if got.TaskID != "t1" || got.Success != 2 || got.Skipped != 1 {
			t.Fatalf("unexpected payload: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never called")
	}
}

func TestWebhookFailureDoesNotBlock(t *testing.T) {
	hook := NewWebhook("http://127.0.0.1:0/unreachable")

	done := make(chan struct{})
	go func() {
		hook.RunFinished(Summary{TaskID: "t2", Status: "paused"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunFinished must return without waiting for delivery")
	}
}
