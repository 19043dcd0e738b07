package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/dsconn/pkg/dsconn"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := dsconn.Message{
		Topic:  dsconn.TopicRecord,
		Action: dsconn.ActionUpdate,
		Name:   "documents/doc-1",
		Data:   []string{"Shello"},
	}

	frame, err := Encode(msg)
	require.NoError(t, err)

	decoded := Decode(frame)
	assert.Equal(t, msg, decoded)
}

func TestDecodeMalformedFrame(t *testing.T) {
	decoded := Decode([]byte("not json"))
	assert.Equal(t, dsconn.ActionParseError, decoded.Action)
}

func TestDecodeUnrecognizedAction(t *testing.T) {
	decoded := Decode([]byte(`{"t":"CONNECTION","a":"NOT_A_REAL_ACTION"}`))
	assert.Equal(t, dsconn.ActionParseError, decoded.Action)
}

func TestEncodeTypedScalars(t *testing.T) {
	cases := []struct {
		name string
		in   any
	}{
		{"nil", nil},
		{"string", "hello"},
		{"bool true", true},
		{"bool false", false},
		{"float", 3.25},
		{"int", 42},
		{"object", map[string]any{"a": float64(1)}},
		{"array", []any{float64(1), "two"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeTyped(tc.in)
			require.NoError(t, err)

			decoded, err := ConvertTyped(encoded)
			require.NoError(t, err)

			switch v := tc.in.(type) {
			case int:
				assert.Equal(t, float64(v), decoded)
			default:
				assert.Equal(t, tc.in, decoded)
			}
		})
	}
}

func TestDecodeTypedUnknownTag(t *testing.T) {
	_, err := DecodeTyped("Xfoo")
	assert.Error(t, err)
}

func TestDecodeTypedEmpty(t *testing.T) {
	_, err := DecodeTyped("")
	assert.Error(t, err)
}

func TestTopicIsValid(t *testing.T) {
	assert.True(t, dsconn.TopicConnection.IsValid(dsconn.ActionPing))
	assert.False(t, dsconn.TopicConnection.IsValid(dsconn.ActionUpdate))
	assert.True(t, dsconn.TopicRecord.IsValid(dsconn.ActionUpdate))
	assert.True(t, dsconn.TopicRPC.IsValid(dsconn.Action("ANYTHING")))
}
