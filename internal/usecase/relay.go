package usecase

import (
	"context"
	"errors"
	"log/slog"
)

// MessageSender is the platform send API.
type MessageSender interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendImage(ctx context.Context, recipientID, imageURL string) error
	SendTypingIndicator(ctx context.Context, recipientID string) error
}

// Relay sends outbound actions. Failures are logged here and returned as
// RELAY_FAILURE so callers can record them; they never abort a caller.
type Relay struct {
	sender MessageSender
	log    *slog.Logger
}

func NewRelay(sender MessageSender, log *slog.Logger) (*Relay, error) {
	if sender == nil {
		return nil, errors.New("usecase: message sender must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{sender: sender, log: log}, nil
}

func (r *Relay) SendText(ctx context.Context, recipientID, text string) error {
	return r.report(ctx, "text", recipientID, r.sender.SendText(ctx, recipientID, text))
}

func (r *Relay) SendImage(ctx context.Context, recipientID, imageURL string) error {
	return r.report(ctx, "image", recipientID, r.sender.SendImage(ctx, recipientID, imageURL))
}

func (r *Relay) SendTypingIndicator(ctx context.Context, recipientID string) error {
	return r.report(ctx, "typing_indicator", recipientID, r.sender.SendTypingIndicator(ctx, recipientID))
}

func (r *Relay) report(ctx context.Context, action, recipientID string, err error) error {
	if err == nil {
		return nil
	}
	r.log.WarnContext(ctx, "outbound send failed",
		"code", ErrorRelayFailure,
		"action", action,
		"recipient", recipientID,
		"err", err)
	return newError(ErrorRelayFailure, "send_"+action, err)
}
