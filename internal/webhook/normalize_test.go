package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dm-relay/internal/domain"
)

var hello = []domain.InboundEvent{{SenderID: "123", Text: "hello"}}

func TestNormalize_KnownShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "messaging array",
			body: `{"object":"instagram","entry":[{"id":"p1","messaging":[{"sender":{"id":"123"},"recipient":{"id":"p1"},"message":{"mid":"m1","text":"hello"}}]}]}`,
		},
		{
			name: "change with from object",
			body: `{"entry":[{"changes":[{"field":"messages","value":{"from":{"id":"123"},"message":{"text":"hello"}}}]}]}`,
		},
		{
			name: "change with from string",
			body: `{"entry":[{"changes":[{"value":{"from":"123","message":{"text":"hello"}}}]}]}`,
		},
		{
			name: "change with messages array",
			body: `{"entry":[{"changes":[{"value":{"messages":[{"from":"123","type":"text","text":{"body":"hello"}}]}}]}]}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, err := Normalize([]byte(tc.body))
			require.NoError(t, err)
			require.Equal(t, hello, events)
		})
	}
}

func TestNormalize_MissingTextIsSkipped(t *testing.T) {
	events, err := Normalize([]byte(`{"entry":[{"messaging":[{"sender":{"id":"123"},"message":{"mid":"m1"}}]}]}`))
	require.NoError(t, err)
	require.Empty(t, events)
	require.NotNil(t, events)
}

func TestNormalize_SkipsPartialEntries(t *testing.T) {
	body := `{"entry":[
		{"messaging":[
			{"sender":{},"message":{"text":"no sender"}},
			{"sender":{"id":"1"},"read":{"watermark":1}},
			{"sender":{"id":"2"},"message":{"text":"   "}},
			{"sender":{"id":"3"},"message":{"text":"echo","is_echo":true}},
			"garbage",
			{"sender":{"id":"4"},"message":{"text":" kept "}}
		]},
		{"changes":[{"value":{"messages":[{"from":"5","type":"image","image":{"id":"x"}},{"from":"6","text":{"body":"also kept"}}]}}]},
		{"unknown":true}
	]}`
	events, err := Normalize([]byte(body))
	require.NoError(t, err)
	require.Equal(t, []domain.InboundEvent{
		{SenderID: "4", Text: "kept"},
		{SenderID: "6", Text: "also kept"},
	}, events)
}

func TestNormalize_NumericSenderKeepsPrecision(t *testing.T) {
	events, err := Normalize([]byte(`{"entry":[{"messaging":[{"sender":{"id":17841470881545429},"message":{"text":"hi"}}]}]}`))
	require.NoError(t, err)
	require.Equal(t, []domain.InboundEvent{{SenderID: "17841470881545429", Text: "hi"}}, events)
}

func TestNormalize_NoEntries(t *testing.T) {
	events, err := Normalize([]byte(`{"object":"instagram"}`))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestNormalize_Malformed(t *testing.T) {
	for _, body := range []string{``, `   `, `not-json`, `[1,2]`, `"text"`, `null`} {
		_, err := Normalize([]byte(body))
		require.ErrorIs(t, err, ErrMalformedPayload, "body=%q", body)
	}
}

func TestNormalize_TrailingDataIsMalformed(t *testing.T) {
	for _, body := range []string{`{"entry":[]}garbage`, `{"entry":[]} {"entry":[]}`, `{"entry":[]}]`} {
		_, err := Normalize([]byte(body))
		require.ErrorIs(t, err, ErrMalformedPayload, "body=%q", body)
	}

	evs, err := Normalize([]byte("{\"entry\":[]}\n"))
	require.NoError(t, err)
	require.Empty(t, evs)
}
