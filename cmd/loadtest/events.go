package main

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UsageEvent is a synthetic AI usage record as emitted by the API gateway.
type UsageEvent struct {
	ID               string    `json:"id"`
	SubscriptionID   string    `json:"subscriptionId"`
	ProductName      string    `json:"productName"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"promptTokens"`
	CompletionTokens int       `json:"completionTokens"`
	TotalTokens      int       `json:"totalTokens"`
	IPAddress        string    `json:"ipAddress"`
	Timestamp        time.Time `json:"timestamp"`
}

var (
	models        = []string{"gpt-4o", "gpt-4o-mini", "gpt-35-turbo", "text-embedding-3-small"}
	products      = []string{"starter", "standard", "premium"}
	subscriptions = []string{
		"6f1c2a4e-0b1d-4c52-9e0a-1f8b7c3d2e11",
		"a3b9d7c1-5e2f-4a68-8b3c-2d4e6f8a0b12",
		"c8e1f3a5-7b9d-4e2c-a6f8-0b2d4c6e8a13",
	}
)

func newUsageEvent(rng *rand.Rand) UsageEvent {
	prompt := 10 + rng.Intn(2000)
	completion := rng.Intn(1000)
	return UsageEvent{
		ID:               uuid.NewString(),
		SubscriptionID:   subscriptions[rng.Intn(len(subscriptions))],
		ProductName:      products[rng.Intn(len(products))],
		Model:            models[rng.Intn(len(models))],
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		IPAddress:        "10.0." + strconv.Itoa(rng.Intn(256)) + "." + strconv.Itoa(rng.Intn(256)),
		Timestamp:        time.Now().UTC(),
	}
}

// malformedPayloads cover each way a record can fail before reaching the
// store.
var malformedPayloads = [][]byte{
	{},                                   // empty body
	{0xff, 0xfe, 0x7b, 0x7d},             // invalid utf-8
	[]byte(`{"model":"gpt-4o",`),         // truncated
	[]byte(`[{"model":"gpt-4o"}]`),       // not an object
	[]byte(`{"model":"gpt-4o"} {"x":1}`), // trailing data
}

// payload returns the next message body: a valid event, or with probability
// malformed one of malformedPayloads.
func payload(rng *rand.Rand, malformed float64) (body []byte, bad bool, err error) {
	if malformed > 0 && rng.Float64() < malformed {
		return malformedPayloads[rng.Intn(len(malformedPayloads))], true, nil
	}
	body, err = json.Marshal(newUsageEvent(rng))
	return body, false, err
}
