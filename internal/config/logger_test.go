package config

import "testing"

func TestNewLogger_builds_for_valid_settings(t *testing.T) {
	cases := []LoggingConfig{
		{},
		{Level: "debug", Format: "json"},
		{Level: "warn", Format: "console"},
	}
	for _, lc := range cases {
		logger, err := NewLogger(lc)
		if err != nil {
			t.Errorf("NewLogger(%+v): %v", lc, err)
			continue
		}
		logger.Debug("sample line")
		_ = logger.Sync()
	}
}

func TestNewLogger_rejects_bad_settings(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(LoggingConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
