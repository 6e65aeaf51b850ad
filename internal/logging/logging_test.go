package logging

import (
	"testing"

	"github.com/kinohall/vodpipe/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{
			name: "json to stdout",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "console to stderr",
			cfg:  config.LoggingConfig{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name: "invalid level falls back to info",
			cfg:  config.LoggingConfig{Level: "loud", Format: "json", Output: "stdout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatal(err)
	}

	child := logger.WithField("asset_id", "abc").WithFields(map[string]interface{}{
		"movie_id": "m1",
		"slot":     "trailer",
	})
	if child == nil {
		t.Fatal("expected child logger")
	}
}
