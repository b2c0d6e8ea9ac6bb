package main

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"
	"unicode/utf8"
)

func TestNewUsageEventIsConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		ev := newUsageEvent(rng)
		if ev.TotalTokens != ev.PromptTokens+ev.CompletionTokens {
			t.Fatalf("token totals do not add up: %+v", ev)
		}
		if ev.ID == "" || ev.SubscriptionID == "" || ev.Model == "" {
			t.Fatalf("missing fields: %+v", ev)
		}
	}
}

func TestPayloadMalformedFraction(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		body, bad, err := payload(rng, 0)
		if err != nil || bad {
			t.Fatalf("payload(0) = bad=%v err=%v", bad, err)
		}
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err != nil {
			t.Fatalf("valid payload does not parse: %v", err)
		}
	}
	for i := 0; i < 50; i++ {
		if _, bad, _ := payload(rng, 1); !bad {
			t.Fatal("payload(1) returned a valid event")
		}
	}
}

func TestMalformedPayloadsAreRejectable(t *testing.T) {
	for i, p := range malformedPayloads {
		if len(p) == 0 || !utf8.Valid(p) {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(p, &obj); err == nil {
			t.Errorf("malformedPayloads[%d] parses as an object: %s", i, p)
		}
	}
}

func TestPercentile(t *testing.T) {
	lat := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(lat, 50); got != 5 {
		t.Errorf("p50 = %v", got)
	}
	if got := percentile(lat, 99); got != 10 {
		t.Errorf("p99 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty = %v", got)
	}
}
