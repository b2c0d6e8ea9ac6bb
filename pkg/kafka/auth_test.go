package kafka

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
)

func TestMechanism(t *testing.T) {
	tests := []struct {
		mechanism string
		wantName  string
		wantErr   bool
	}{
		{"", "", false},
		{"plain", "PLAIN", false},
		{"PLAIN", "PLAIN", false},
		{"scram-sha-256", "SCRAM-SHA-256", false},
		{"scram-sha-512", "SCRAM-SHA-512", false},
		{"gssapi", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.mechanism, func(t *testing.T) {
			m, err := Mechanism(config.SASLConfig{Mechanism: tt.mechanism, Username: EventHubsUsername, Password: "Endpoint=sb://ns/"})
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantName == "" {
				if m != nil {
					t.Errorf("expected no mechanism, got %s", m.Name())
				}
				return
			}
			if m.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", m.Name(), tt.wantName)
			}
		})
	}
}

func TestNewDialerTLS(t *testing.T) {
	d, err := NewDialer(config.KafkaConfig{TLS: true, SASL: config.SASLConfig{Mechanism: "plain"}})
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	if d.TLS == nil || d.SASLMechanism == nil {
		t.Errorf("expected TLS and SASL on dialer, got tls=%v sasl=%v", d.TLS, d.SASLMechanism)
	}
	if d.Timeout == 0 {
		t.Error("expected default dial timeout")
	}
}
