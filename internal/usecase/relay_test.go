package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRelay_ValidatesSender(t *testing.T) {
	_, err := NewRelay(nil, nil)
	require.Error(t, err)
}

func TestRelay_ForwardsActions(t *testing.T) {
	sender := &fakeSender{}
	r, err := NewRelay(sender, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.SendTypingIndicator(ctx, "1"))
	require.NoError(t, r.SendText(ctx, "1", "hi"))
	require.NoError(t, r.SendImage(ctx, "1", "https://cdn.example.com/a.jpg"))
	require.Equal(t, []sentMessage{
		{action: "typing", recipient: "1"},
		{action: "text", recipient: "1", content: "hi"},
		{action: "image", recipient: "1", content: "https://cdn.example.com/a.jpg"},
	}, sender.sent)
}

func TestRelay_FailuresAreLoggedAndTyped(t *testing.T) {
	cause := errors.New("status 500")
	sender := &fakeSender{textErr: cause, imgErr: cause, typeErr: cause}
	logs := &bytes.Buffer{}
	r, err := NewRelay(sender, slog.New(slog.NewTextHandler(logs, nil)))
	require.NoError(t, err)

	ctx := context.Background()
	for action, send := range map[string]func() error{
		"send_text":             func() error { return r.SendText(ctx, "1", "hi") },
		"send_image":            func() error { return r.SendImage(ctx, "1", "https://x/y.png") },
		"send_typing_indicator": func() error { return r.SendTypingIndicator(ctx, "1") },
	} {
		err := send()
		var usecaseErr *Error
		require.ErrorAs(t, err, &usecaseErr)
		require.Equal(t, ErrorRelayFailure, usecaseErr.Code)
		require.Equal(t, action, usecaseErr.Reason)
		require.ErrorIs(t, err, cause)
	}
	require.Contains(t, logs.String(), "outbound send failed")
	require.Contains(t, logs.String(), string(ErrorRelayFailure))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, ErrorStoreUnavailable, CodeOf(newError(ErrorStoreUnavailable, "save", nil)))
	require.Equal(t, ErrorInternal, CodeOf(errors.New("plain")))
}
