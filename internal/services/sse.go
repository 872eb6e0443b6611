package services

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tmaxmax/go-sse"
)

// DefaultPath is the path of the chat streaming endpoint.
const DefaultPath = "/api/chat_sse"

// DefaultMaxEventSize is the largest event accepted when no limit is configured.
const DefaultMaxEventSize = 4 << 20

const queryParam = "q"

var (
	// ErrStreamEnded is returned when the server closes the stream before the reply was completed.
	ErrStreamEnded = errors.New("stream ended without completion")
	// ErrUnexpectedStatus is returned when the endpoint answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// SSE subscribes to the chat endpoint over Server-Sent Events. Each subscription is one GET request
// carrying the query; every unnamed event's data is handed to the caller as one payload.
type SSE struct {
	endpoint *url.URL
	client   *http.Client
	readCfg  *sse.ReadConfig

	logger zerolog.Logger
}

// NewSSE creates an SSE client for the endpoint at base joined with path. A nil client means
// http.DefaultClient. base must be an absolute http or https URL. maxEventSize bounds the size of a
// single event in bytes; zero means DefaultMaxEventSize.
func NewSSE(base, path string, maxEventSize int, client *http.Client, logger zerolog.Logger) (SSE, error) {
	u, err := url.Parse(base)
	if err != nil {
		return SSE{}, errors.Wrapf(err, "invalid endpoint %q", base)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return SSE{}, errors.Errorf("endpoint %q must use http or https", base)
	}
	if u.Host == "" {
		return SSE{}, errors.Errorf("endpoint %q has no host", base)
	}
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		return SSE{}, errors.Errorf("path %q must start with /", path)
	}

	if maxEventSize < 0 {
		return SSE{}, errors.Errorf("max event size must not be negative, got %d", maxEventSize)
	}
	if maxEventSize == 0 {
		maxEventSize = DefaultMaxEventSize
	}

	if client == nil {
		client = http.DefaultClient
	}

	u = u.JoinPath(path)
	u.RawQuery = ""
	u.Fragment = ""

	return SSE{
		endpoint: u,
		client:   client,
		readCfg:  &sse.ReadConfig{MaxEventSize: maxEventSize},
		logger:   logger.With().Str("module", "sse").Logger(),
	}, nil
}

// URL returns the request URL of a subscription for query.
func (s SSE) URL(query string) string {
	u := *s.endpoint
	u.RawQuery = url.Values{queryParam: []string{query}}.Encode()
	return u.String()
}

// Stream implements chat.Streamer. It returns nil when dispatch stops the stream or ctx is
// cancelled, ErrUnexpectedStatus for a non-2xx answer and ErrStreamEnded when the server closes the
// stream while dispatch still wanted more.
func (s SSE) Stream(ctx context.Context, query string, dispatch func(data []byte) bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(query), nil)
	if err != nil {
		return errors.Wrap(err, "error creating request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "error sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(ErrUnexpectedStatus, "status %s", resp.Status)
	}

	s.logger.Debug().Str("url", req.URL.String()).Msg("Stream opened")

	for ev, err := range sse.Read(resp.Body, s.readCfg) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return errors.Wrap(err, "error reading stream")
		}
		// Named events are not message events and are skipped.
		if ev.Type != "" && ev.Type != "message" {
			s.logger.Debug().Str("type", ev.Type).Msg("Skipping named event")
			continue
		}
		if !dispatch([]byte(ev.Data)) {
			return nil
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return ErrStreamEnded
}
