package models

import (
	"encoding/json"
	"testing"
)

func TestSessionStatus_JSON(t *testing.T) {
	for st := StatusAwaitingConsent; st <= StatusCompleted; st++ {
		raw, err := json.Marshal(st)
		if err != nil {
			t.Fatalf("marshal %v: %v", st, err)
		}
		var got SessionStatus
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if got != st {
			t.Errorf("round trip of %v gave %v", st, got)
		}
	}

	var st SessionStatus
	if err := json.Unmarshal([]byte(`"PAUSED"`), &st); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	if StatusSubmitting.IsTerminal() {
		t.Error("SUBMITTING must not be terminal")
	}
	if !StatusCompleted.IsTerminal() {
		t.Error("COMPLETED must be terminal")
	}
}
