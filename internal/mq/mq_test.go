package mq

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shaiso/Harvester/internal/domain"
)

// --- Payload Tests ---

func TestParsePayload(t *testing.T) {
	// Payload после Unmarshal конверта — map[string]any
	raw := `{
		"id": "msg-1",
		"type": "task.submit",
		"payload": {
			"name": "price-watch",
			"type": "scrape",
			"target_url": "https://example.com/items",
			"priority": 7
		}
	}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if msg.Type != MessageTypeTaskSubmit {
		t.Errorf("unexpected message type: %s", msg.Type)
	}

	payload, err := ParsePayload[TaskSubmitPayload](&msg)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.Name != "price-watch" || payload.Type != domain.TaskTypeScrape {
		t.Errorf("unexpected payload: %+v", payload)
	}
	if payload.Priority != 7 {
		t.Errorf("expected priority 7, got %d", payload.Priority)
	}
}

func TestParsePayload_TypeMismatch(t *testing.T) {
	msg := &Message{
		Type:    MessageTypeTaskSubmit,
		Payload: map[string]any{"priority": "not-a-number"},
	}

	if _, err := ParsePayload[TaskSubmitPayload](msg); err == nil {
		t.Error("expected error for mismatched payload field")
	}
}

// --- Submit Validation Tests ---

func TestValidateSubmit(t *testing.T) {
	valid := TaskSubmitPayload{
		Name:      "ok",
		Type:      domain.TaskTypeScrape,
		TargetURL: "https://example.com",
	}
	if err := validateSubmit(valid); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
}

func TestValidateSubmit_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		payload TaskSubmitPayload
		wantErr string
	}{
		{
			name:    "missing name",
			payload: TaskSubmitPayload{Type: domain.TaskTypeScrape, TargetURL: "https://example.com"},
			wantErr: "name is required",
		},
		{
			name:    "unknown type",
			payload: TaskSubmitPayload{Name: "x", Type: "teleport", TargetURL: "https://example.com"},
			wantErr: "unknown task type",
		},
		{
			name:    "missing target url",
			payload: TaskSubmitPayload{Name: "x", Type: domain.TaskTypeScrape},
			wantErr: "target_url is required",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSubmit(tc.payload)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected %q in error, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateSubmit_CustomWithoutURL(t *testing.T) {
	// custom executor может обходиться без target_url
	payload := TaskSubmitPayload{Name: "internal-job", Type: domain.TaskTypeCustom}
	if err := validateSubmit(payload); err != nil {
		t.Errorf("custom task without url should be accepted: %v", err)
	}
}
