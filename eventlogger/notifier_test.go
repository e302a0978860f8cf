package eventlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/billbatista/acasinha-gifts/groupgift"
)

func TestToEvent(t *testing.T) {
	e := ToEvent(groupgift.Notification{
		Kind:       groupgift.KindCompleted,
		CampaignID: 42,
		Payload:    groupgift.CompletedEvent{Title: "Mom's birthday"},
	})

	if e.Type != "group_gift.completed" {
		t.Fatalf("expected completed type, got %q", e.Type)
	}
	if e.Metadata["group_gift_id"] != "42" {
		t.Fatalf("expected group_gift_id metadata 42, got %q", e.Metadata["group_gift_id"])
	}
	if _, ok := e.Data.(groupgift.CompletedEvent); !ok {
		t.Fatalf("expected payload to be kept, got %T", e.Data)
	}
}

func TestNotifierEnqueues(t *testing.T) {
	store := &memoryLogger{}
	w := NewWorker(store, 4, nil)
	w.Start()

	n := NewNotifier(w)
	n.Notify(groupgift.Notification{Kind: groupgift.KindCreated, CampaignID: 1})
	n.Notify(groupgift.Notification{Kind: groupgift.KindInvitationsSent, CampaignID: 1})
	w.Shutdown()

	saved := store.saved()
	if len(saved) != 2 {
		t.Fatalf("expected 2 events, got %d", len(saved))
	}
	if saved[0].Type != string(groupgift.KindCreated) {
		t.Fatalf("expected first event to be created, got %q", saved[0].Type)
	}
}

func TestSlogEventLogger(t *testing.T) {
	var buf bytes.Buffer
	el := NewSlogEventLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	e := NewEvent(WithType("group_gift.created"), WithMetadata("group_gift_id", "7"))
	if err := el.Save(context.Background(), e); err != nil {
		t.Fatalf("save: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["event_type"] != "group_gift.created" {
		t.Fatalf("expected event_type in log, got %v", line["event_type"])
	}
	if line["group_gift_id"] != "7" {
		t.Fatalf("expected metadata in log, got %v", line["group_gift_id"])
	}
}
