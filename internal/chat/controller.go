package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// PlaceholderText is the text of a bot message before the first fragment of its reply arrives.
const PlaceholderText = "..."

// ErrNoCompletion is the error a session fails with when its stream stops without a done event.
var ErrNoCompletion = errors.New("stream closed without completion")

// Streamer opens a server-push subscription for query. It feeds every event payload to dispatch, in
// the order the server sent them, until dispatch returns false, the stream ends or fails, or ctx is
// cancelled. It returns nil when dispatch stopped it or ctx was cancelled.
type Streamer interface {
	Stream(ctx context.Context, query string, dispatch func(data []byte) bool) error
}

// Options tunes the behaviour of a Controller.
type Options struct {
	// CancelPrevious cancels every open session when a new query is submitted.
	CancelPrevious bool
	// ErrorMarker is appended to the placeholder of a session that failed. Empty disables it.
	ErrorMarker string
	// StreamTimeout bounds the lifetime of a session. Zero means no limit.
	StreamTimeout time.Duration
}

// Controller turns submitted queries into streamed replies rendered into a Transcript.
type Controller struct {
	transcript *Transcript
	streamer   Streamer
	opts       Options
	logger     zerolog.Logger

	mu       sync.Mutex
	sessions []*Session
	wg       sync.WaitGroup
}

// NewController creates a Controller rendering into transcript and streaming through streamer.
func NewController(transcript *Transcript, streamer Streamer, opts Options, logger zerolog.Logger) *Controller {
	return &Controller{
		transcript: transcript,
		streamer:   streamer,
		opts:       opts,
		logger:     logger.With().Str("module", "chat").Logger(),
	}
}

// Transcript returns the transcript the controller renders into.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// Submit appends the trimmed query as a user message, appends a placeholder bot message and opens one
// subscription for the reply. An empty query is ignored: nothing is appended, nothing is opened and
// the returned bool is false.
//
// The subscription lives until the reply is done, the transport fails, the session is cancelled or
// ctx is cancelled.
func (c *Controller) Submit(ctx context.Context, query string) (*Session, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, false
	}

	if c.opts.CancelPrevious {
		c.CancelAll()
	}

	c.transcript.Append(query, models.AuthorUser)
	placeholder := c.transcript.Append(PlaceholderText, models.AuthorBot)

	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if c.opts.StreamTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, c.opts.StreamTimeout)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}

	s := newSession(query, c.transcript, placeholder, c.opts.ErrorMarker, cancel,
		c.logger.With().Str("query", query).Logger())

	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()

	s.logger.Debug().Msg("Opening stream")

	c.wg.Add(1)
	go c.run(sctx, s)

	return s, true
}

func (c *Controller) run(ctx context.Context, s *Session) {
	defer c.wg.Done()
	defer c.forget(s)

	err := c.streamer.Stream(ctx, s.query, s.Dispatch)
	switch {
	case err != nil:
		s.Fail(err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.Fail(ctx.Err())
	case ctx.Err() != nil:
		s.Cancel()
	default:
		// A streamer that returns nil on its own while the session is open lost the stream.
		s.Fail(ErrNoCompletion)
	}

	s.logger.Debug().
		Str("reason", s.Reason().String()).
		Int("received", len(s.Text())).
		Msg("Stream closed")
}

func (c *Controller) forget(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, open := range c.sessions {
		if open == s {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			return
		}
	}
}

// Active returns the sessions whose stream has not finished yet, oldest first.
func (c *Controller) Active() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		if s.State() == StateOpen {
			active = append(active, s)
		}
	}
	return active
}

// CancelAll cancels every open session.
func (c *Controller) CancelAll() {
	for _, s := range c.Active() {
		s.Cancel()
	}
}

// Wait blocks until every stream goroutine started by Submit has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}
