package logger

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	log, err := New("debug", "console")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	_ = log.Sync()
}
