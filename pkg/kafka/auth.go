package kafka

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// EventHubsUsername is the SASL PLAIN username the Event Hubs Kafka endpoint
// expects; the password is the namespace connection string.
const EventHubsUsername = "$ConnectionString"

// Mechanism builds the SASL mechanism named in cfg, or nil when none is
// configured.
func Mechanism(cfg config.SASLConfig) (sasl.Mechanism, error) {
	switch strings.ToLower(cfg.Mechanism) {
	case "":
		return nil, nil
	case "plain":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "scram-sha-256":
		m, err := scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("creating scram-sha-256 mechanism: %w", err)
		}
		return m, nil
	case "scram-sha-512":
		m, err := scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("creating scram-sha-512 mechanism: %w", err)
		}
		return m, nil
	default:
		return nil, apperrors.NewConfigError("kafka.sasl.mechanism", "unsupported mechanism %q", cfg.Mechanism)
	}
}

func tlsConfig(cfg config.KafkaConfig) *tls.Config {
	if !cfg.TLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// NewDialer returns the dialer used by readers, carrying TLS and SASL
// settings from cfg.
func NewDialer(cfg config.KafkaConfig) (*kafka.Dialer, error) {
	mechanism, err := Mechanism(cfg.SASL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Dialer{
		Timeout:       timeout,
		DualStack:     true,
		TLS:           tlsConfig(cfg),
		SASLMechanism: mechanism,
	}, nil
}

// NewTransport is the writer-side counterpart of NewDialer.
func NewTransport(cfg config.KafkaConfig) (*kafka.Transport, error) {
	mechanism, err := Mechanism(cfg.SASL)
	if err != nil {
		return nil, err
	}
	t := &kafka.Transport{
		TLS:  tlsConfig(cfg),
		SASL: mechanism,
	}
	if cfg.DialTimeout > 0 {
		t.DialTimeout = cfg.DialTimeout
	}
	return t, nil
}
