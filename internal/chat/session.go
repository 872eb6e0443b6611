package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State is the liveness of a Session.
type State int

const (
	// StateOpen means the session still accepts events.
	StateOpen State = iota
	// StateClosed means the session ignores every further event. There is no way back to StateOpen.
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Reason tells why a session was closed.
type Reason int

const (
	// ReasonNone is the reason of a session that is still open.
	ReasonNone Reason = iota
	// ReasonDone means the server signalled the end of the reply.
	ReasonDone
	// ReasonError means the transport failed or the stream ended without completion.
	ReasonError
	// ReasonCancelled means the session was cancelled locally.
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonDone:
		return "done"
	case ReasonError:
		return "error"
	case ReasonCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Session is one streamed reply. It accumulates the fragments of the reply and writes the running
// total into its placeholder message until it is closed. All methods are safe for concurrent use.
type Session struct {
	id          string
	query       string
	transcript  *Transcript
	placeholder Handle
	errorMarker string
	logger      zerolog.Logger

	mu     sync.Mutex
	state  State
	reason Reason
	err    error
	buf    strings.Builder
	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(query string, transcript *Transcript, placeholder Handle, errorMarker string,
	cancel context.CancelFunc, logger zerolog.Logger,
) *Session {
	id := placeholder.ID()
	return &Session{
		id:          id,
		query:       query,
		transcript:  transcript,
		placeholder: placeholder,
		errorMarker: errorMarker,
		logger:      logger.With().Str("session", id).Logger(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// ID returns the session identifier. It is the ID of the placeholder message.
func (s *Session) ID() string {
	return s.id
}

// Query returns the text the session was opened for.
func (s *Session) Query() string {
	return s.query
}

// Placeholder returns the handle of the message the session writes into.
func (s *Session) Placeholder() Handle {
	return s.placeholder
}

// Dispatch processes one event payload and reports whether the session is still open afterwards.
// Malformed payloads are skipped; fields of the wrong type are skipped while the rest of the event
// still applies. A non-empty chunk is appended to the buffer and the placeholder is
// rewritten with the whole buffer; a truthy done flag closes the session.
func (s *Session) Dispatch(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		s.logger.Debug().Msg("Dropping event for closed session")
		return false
	}

	ev, err := models.ParseEvent(data)
	if err != nil {
		s.logger.Debug().Err(err).Str("payload", string(data)).Msg("Skipping malformed event fields")
	}

	if ev.Chunk != "" {
		s.buf.WriteString(ev.Chunk)
		s.transcript.UpdateText(s.placeholder, s.buf.String())
	}

	if ev.Done {
		s.closeLocked(ReasonDone, nil)
		return false
	}
	return true
}

// Fail closes the session after a transport error. The placeholder keeps the text received so far,
// followed by the error marker when one is configured. Calling Fail on a closed session does nothing.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	s.logger.Warn().Err(err).Int("received", s.buf.Len()).Msg("Stream failed")

	if s.errorMarker != "" {
		text := s.buf.String()
		if text == "" {
			text = PlaceholderText
		}
		s.transcript.UpdateText(s.placeholder, text+" "+s.errorMarker)
	}
	s.closeLocked(ReasonError, err)
}

// Cancel closes the subscription and the session. The placeholder keeps the text received so far.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.logger.Debug().Msg("Cancelling session")
	s.closeLocked(ReasonCancelled, nil)
}

func (s *Session) closeLocked(reason Reason, err error) {
	s.state = StateClosed
	s.reason = reason
	s.err = err
	if s.cancel != nil {
		s.cancel()
	}
	close(s.done)
}

// State returns the current state of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Reason returns why the session was closed, or ReasonNone while it is open.
func (s *Session) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reason
}

// Err returns the transport error that closed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Text returns the reply accumulated so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.String()
}

// Done returns a channel that is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is closed or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for session")
	}
}
