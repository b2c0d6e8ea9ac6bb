package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/usage-relay/pkg/errors"
)

// Record is one event as delivered by the transport. Only Body is
// interpreted; the position fields identify where it came from.
type Record struct {
	Source    string
	Partition int
	Offset    int64
	Key       []byte
	Body      []byte
	Timestamp time.Time
}

// Position renders the record's transport position as source/partition/offset.
func (r Record) Position() string {
	return r.Source + "/" + strconv.Itoa(r.Partition) + "/" + strconv.FormatInt(r.Offset, 10)
}

// Document is the parsed form of a record body, stored as-is. Key is the
// document identity; empty means the store chooses one.
type Document struct {
	Key  string
	Body map[string]any
}

// KeyPolicy decides how a document key is derived from its record.
type KeyPolicy int

const (
	// KeyNone leaves identity to the store, so every write is a blind insert.
	KeyNone KeyPolicy = iota
	// KeyPosition derives the key from the record's transport position, so a
	// redelivered record maps onto the document it already produced.
	KeyPosition
)

// ParseKeyPolicy maps a config value ("none", "position") to a KeyPolicy.
func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch s {
	case "none":
		return KeyNone, nil
	case "position", "":
		return KeyPosition, nil
	default:
		return KeyNone, apperrors.NewConfigError("relay.keyPolicy", "unknown policy %q", s)
	}
}

func (p KeyPolicy) String() string {
	if p == KeyPosition {
		return "position"
	}
	return "none"
}

func (p KeyPolicy) key(r Record) string {
	if p == KeyPosition {
		return r.Position()
	}
	return ""
}

// decode checks that the body is valid UTF-8 text. An empty body decodes to
// empty text and is rejected by parse.
func decode(body []byte) (string, error) {
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: invalid utf-8", apperrors.ErrDecode)
	}
	return string(body), nil
}

// parse decodes text as exactly one JSON object. Numbers are kept as
// json.Number so large integers survive the round trip to the store.
func parse(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty body", apperrors.ErrParse)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrParse, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", apperrors.ErrParse, jsonKind(v))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after the document", apperrors.ErrParse)
	}
	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
