package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"dm-relay/internal/domain"
)

const (
	DefaultTypingDelayMin = 1500 * time.Millisecond
	DefaultTypingDelayMax = 3 * time.Second
)

// State is the terminal state of one processed event.
type State string

const (
	StateDiscarded State = "DISCARDED"
	StateDone      State = "DONE"
)

type SessionStore interface {
	Load(ctx context.Context, senderID string) (domain.Session, bool, error)
	Save(ctx context.Context, senderID string, s domain.Session) error
}

type Completer interface {
	Complete(ctx context.Context, history []domain.Turn) (string, error)
}

// Outcome records what happened to one inbound event.
type Outcome struct {
	State     State
	SenderID  string
	Reply     string
	Fallback  bool
	Delivered bool
	Persisted bool
	// Failures holds the contained per-event failures in the order they occurred.
	Failures []error
}

// ConversationService runs one inbound direct message through
// load, append, complete, relay and persist. It keeps no state between events.
type ConversationService struct {
	store     SessionStore
	completer Completer
	relay     *Relay
	log       *slog.Logger

	typing bool
	pause  func(ctx context.Context)
}

type ServiceOption func(*ConversationService)

func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *ConversationService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTypingIndicator toggles the typing signal and the pause that follows it.
func WithTypingIndicator(enabled bool) ServiceOption {
	return func(s *ConversationService) {
		s.typing = enabled
	}
}

// WithTypingDelay sets the range the pre-reply pause is drawn from.
func WithTypingDelay(min, max time.Duration) ServiceOption {
	return func(s *ConversationService) {
		s.pause = jitteredPause(min, max)
	}
}

// WithPause replaces the pre-reply pause, e.g. with a no-op in tests.
func WithPause(pause func(ctx context.Context)) ServiceOption {
	return func(s *ConversationService) {
		if pause != nil {
			s.pause = pause
		}
	}
}

func NewConversationService(store SessionStore, completer Completer, relay *Relay, opts ...ServiceOption) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if completer == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if relay == nil {
		return nil, errors.New("usecase: relay must not be nil")
	}
	s := &ConversationService{
		store:     store,
		completer: completer,
		relay:     relay,
		log:       slog.Default(),
		typing:    true,
		pause:     jitteredPause(DefaultTypingDelayMin, DefaultTypingDelayMax),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle processes one event to a terminal state. It never returns an error:
// completion, relay and store failures are contained and logged.
func (s *ConversationService) Handle(ctx context.Context, ev domain.InboundEvent) Outcome {
	senderID := strings.TrimSpace(ev.SenderID)
	text := strings.TrimSpace(ev.Text)
	out := Outcome{SenderID: senderID}
	if senderID == "" || text == "" {
		s.log.DebugContext(ctx, "event discarded", "sender", senderID)
		out.State = StateDiscarded
		return out
	}
	log := s.log.With("sender", senderID)

	session, loaded := s.load(ctx, log, senderID, &out)
	session.Append(domain.RoleUser, text)

	if s.typing {
		_ = s.relay.SendTypingIndicator(ctx, senderID)
		s.pause(ctx)
	}

	reply, err := s.completer.Complete(ctx, session.History)
	if err != nil {
		log.WarnContext(ctx, "completion failed, sending fallback", "code", CodeOf(err), "err", err)
		out.Failures = append(out.Failures, err)
		out.Fallback = true
		reply = FallbackReply
	} else {
		session.Append(domain.RoleAssistant, reply)
	}
	out.Reply = reply

	if err := s.relay.SendText(ctx, senderID, reply); err != nil {
		out.Failures = append(out.Failures, err)
	} else {
		out.Delivered = true
	}

	if loaded {
		if err := s.store.Save(ctx, senderID, session); err != nil {
			reason := "save"
			if errors.Is(err, domain.ErrSessionConflict) {
				reason = "save_conflict"
			}
			log.WarnContext(ctx, "session not persisted", "code", ErrorStoreUnavailable, "reason", reason, "err", err)
			out.Failures = append(out.Failures, newError(ErrorStoreUnavailable, reason, err))
		} else {
			out.Persisted = true
		}
	}

	out.State = StateDone
	log.InfoContext(ctx, "event done",
		"fallback", out.Fallback,
		"delivered", out.Delivered,
		"persisted", out.Persisted,
		"history", len(session.History))
	return out
}

// load returns the stored session or a fresh one. ok is false only when the
// store failed; the event is then answered but not persisted, so a transient
// read error cannot overwrite existing history with an empty one.
func (s *ConversationService) load(ctx context.Context, log *slog.Logger, senderID string, out *Outcome) (domain.Session, bool) {
	session, found, err := s.store.Load(ctx, senderID)
	if err != nil {
		log.WarnContext(ctx, "session load failed, replying without history", "code", ErrorStoreUnavailable, "err", err)
		out.Failures = append(out.Failures, newError(ErrorStoreUnavailable, "load", err))
		return domain.NewSession(senderID), false
	}
	if !found {
		return domain.NewSession(senderID), true
	}
	if session.Profile == nil {
		session.Profile = map[string]any{}
	}
	session.SenderID = senderID
	session.History = domain.TrimHistory(session.History, domain.MaxHistory)
	return session, true
}

func jitteredPause(min, max time.Duration) func(ctx context.Context) {
	if max < min {
		min, max = max, min
	}
	return func(ctx context.Context) {
		d := min
		if span := max - min; span > 0 {
			d += time.Duration(rand.Int64N(int64(span)))
		}
		if d <= 0 {
			return
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}
