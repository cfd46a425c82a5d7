package observe

import (
	"context"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing service name",
			cfg:     Config{},
			wantErr: "service name is required",
		},
		{
			name: "valid minimal",
			cfg:  Config{ServiceName: "shield"},
		},
		{
			name: "valid full",
			cfg: Config{
				ServiceName: "shield",
				Version:     "1.0.0",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 0.5},
				Metrics:     MetricsConfig{Enabled: true, Exporter: "stdout"},
				Logging:     LoggingConfig{Enabled: true, Level: "debug"},
			},
		},
		{
			name: "unknown tracing exporter",
			cfg: Config{
				ServiceName: "shield",
				Tracing:     TracingConfig{Enabled: true, Exporter: "jaeger"},
			},
			wantErr: "unknown tracing exporter",
		},
		{
			name: "sample pct out of range",
			cfg: Config{
				ServiceName: "shield",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 1.5},
			},
			wantErr: "sample percentage",
		},
		{
			name: "unknown metrics exporter",
			cfg: Config{
				ServiceName: "shield",
				Metrics:     MetricsConfig{Enabled: true, Exporter: "statsd"},
			},
			wantErr: "unknown metrics exporter",
		},
		{
			name: "unknown log level",
			cfg: Config{
				ServiceName: "shield",
				Logging:     LoggingConfig{Enabled: true, Level: "verbose"},
			},
			wantErr: "unknown log level",
		},
		{
			name: "disabled subsystems skip validation",
			cfg: Config{
				ServiceName: "shield",
				Tracing:     TracingConfig{Enabled: false, Exporter: "jaeger"},
				Metrics:     MetricsConfig{Enabled: false, Exporter: "statsd"},
				Logging:     LoggingConfig{Enabled: false, Level: "verbose"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewObserver_Disabled(t *testing.T) {
	ctx := context.Background()

	obs, err := NewObserver(ctx, Config{ServiceName: "shield"})
	if err != nil {
		t.Fatalf("NewObserver: %v", err)
	}

	// Disabled subsystems fall back to noops that are safe to use.
	if obs.Tracer() == nil {
		t.Error("Tracer() returned nil")
	}
	if obs.Meter() == nil {
		t.Error("Meter() returned nil")
	}
	if obs.Logger() == nil {
		t.Error("Logger() returned nil")
	}

	_, span := obs.Tracer().Start(ctx, "test")
	span.End()
	obs.Logger().Info(ctx, "noop")

	if err := obs.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewObserver_InvalidConfig(t *testing.T) {
	_, err := NewObserver(context.Background(), Config{})
	if err == nil {
		t.Fatal("NewObserver with empty config should fail")
	}
}

func TestObserver_ShutdownIdempotent(t *testing.T) {
	ctx := context.Background()

	obs, err := NewObserver(ctx, Config{
		ServiceName: "shield",
		Metrics:     MetricsConfig{Enabled: true, Exporter: "none"},
	})
	if err != nil {
		t.Fatalf("NewObserver: %v", err)
	}

	if err := obs.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := obs.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
