package events

import (
	"encoding/json"
	"testing"
)

func TestChannelNamingIsProjectScoped(t *testing.T) {
	b := NewBus("127.0.0.1:6379", "proj-123")
	defer b.Close()

	if got := b.channel(TopicNodeUpdated); got != "project:proj-123:node.updated" {
		t.Fatalf("channel() = %q, want project:proj-123:node.updated", got)
	}
	if got := b.channel(TopicLogWarning); got != "project:proj-123:log.warning" {
		t.Fatalf("channel() = %q, want project:proj-123:log.warning", got)
	}
}

func TestEnvelopeMarshalsExpectedFields(t *testing.T) {
	env := Envelope{ProjectID: "p1", NodeID: "n1", Message: "boom"}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["project_id"] != "p1" || decoded["node_id"] != "n1" || decoded["message"] != "boom" {
		t.Fatalf("decoded = %v", decoded)
	}
	if _, hasData := decoded["data"]; hasData {
		t.Fatalf("empty Data should be omitted, got %v", decoded)
	}
}
