// Package codec implements the Message Codec (spec §4.A): encoding dsconn.Message values
// to wire frames and decoding frames back, including the typed-scalar encoding PATCH
// payloads need to round-trip through ConvertTyped.
//
// The wire frame is one JSON object per message, with short field names ("t"/"a"/"n"/"d"
// rather than "topic"/"action"/"name"/"data") to keep per-frame overhead low on a
// protocol that can push many small messages per second.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tsarna/dsconn/pkg/dsconn"
)

// wireMessage is the JSON shape of one frame.
type wireMessage struct {
	Topic  string   `json:"t"`
	Action string   `json:"a"`
	Name   string   `json:"n,omitempty"`
	Data   []string `json:"d,omitempty"`
}

// Encode renders a Message to its wire frame. Encode never fails on a well-formed
// Message; malformed typed values inside Data are the caller's responsibility to avoid
// by always building Data through EncodeTyped.
func Encode(msg dsconn.Message) ([]byte, error) {
	wm := wireMessage{
		Topic:  string(msg.Topic),
		Action: string(msg.Action),
		Name:   msg.Name,
		Data:   msg.Data,
	}

	b, err := json.Marshal(wm)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", msg, err)
	}
	return b, nil
}

// Decode parses one wire frame into a Message. Per §4.A, Decode never returns an error
// the caller must itself branch on to keep the connection alive — any malformed frame or
// unrecognized (topic, action) pair decodes to a synthetic Message carrying
// dsconn.ActionParseError, which the Connection Core logs and drops.
func Decode(frame []byte) dsconn.Message {
	var wm wireMessage
	if err := json.Unmarshal(frame, &wm); err != nil {
		return parseError(fmt.Sprintf("malformed frame: %v", err))
	}

	topic := dsconn.Topic(wm.Topic)
	action := dsconn.Action(wm.Action)

	if !topic.IsValid(action) {
		return parseError(fmt.Sprintf("unrecognized (topic=%s, action=%s)", wm.Topic, wm.Action))
	}

	return dsconn.Message{
		Topic:  topic,
		Action: action,
		Name:   wm.Name,
		Data:   wm.Data,
	}
}

func parseError(reason string) dsconn.Message {
	return dsconn.Message{
		Topic:      dsconn.TopicConnection,
		Action:     dsconn.ActionParseError,
		ParsedData: reason,
	}
}

// Typed scalar tags. A typed value on the wire is its tag byte followed by the scalar's
// string form, e.g. "N42", "Strue" is never emitted (booleans use "B"), "Shello",
// "L" (null, no payload), "O{\"a\":1}" for JSON-encoded objects/arrays.
const (
	tagString = 'S'
	tagNumber = 'N'
	tagBool   = 'B'
	tagNull   = 'L'
	tagObject = 'O'
)

// EncodeTyped converts an arbitrary JSON scalar or structured value into its typed wire
// string, preserving enough information for DecodeTyped to recover the original Go type.
func EncodeTyped(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return string(tagNull), nil
	case string:
		return string(tagString) + val, nil
	case bool:
		if val {
			return string(tagBool) + "true", nil
		}
		return string(tagBool) + "false", nil
	case float64:
		return string(tagNumber) + strconv.FormatFloat(val, 'g', -1, 64), nil
	case int:
		return string(tagNumber) + strconv.Itoa(val), nil
	case int64:
		return string(tagNumber) + strconv.FormatInt(val, 10), nil
	default:
		// Objects, arrays, and any other JSON-marshalable value are carried as a nested
		// JSON document so structure is preserved exactly.
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("codec: encode typed value: %w", err)
		}
		return string(tagObject) + string(b), nil
	}
}

// DecodeTyped is the inverse of EncodeTyped: ConvertTyped(EncodeTyped(v)) reproduces a
// value deep-equal to v for every scalar and JSON-marshalable structured value.
func DecodeTyped(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("codec: empty typed value")
	}

	tag, rest := s[0], s[1:]
	switch tag {
	case tagNull:
		return nil, nil
	case tagString:
		return rest, nil
	case tagBool:
		return rest == "true", nil
	case tagNumber:
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("codec: decode typed number %q: %w", rest, err)
		}
		return f, nil
	case tagObject:
		var v any
		if err := json.Unmarshal([]byte(rest), &v); err != nil {
			return nil, fmt.Errorf("codec: decode typed object %q: %w", rest, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("codec: unknown typed value tag %q", tag)
	}
}

// ConvertTyped is an alias for DecodeTyped under the name the spec uses (§4.A) for the
// round-trip property: convertTyped(encodeTyped(v)) == v.
func ConvertTyped(s string) (any, error) {
	return DecodeTyped(s)
}
