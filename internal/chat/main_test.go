package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/MegaGrindStone/sse-chat/internal/chat"
	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type delivery struct {
	data []byte
	err  error
	end  bool
	ack  chan bool
}

type mockStream struct {
	query string
	in    chan delivery
	gone  chan struct{}
}

// mockStreamer hands every opened stream to the test, which drives it event by event.
type mockStreamer struct {
	mu     sync.Mutex
	opened []string
	ch     chan *mockStream
}

type recordedChange struct {
	msg      models.Message
	appended bool
}

type recordingViewport struct {
	mu      sync.Mutex
	changes []recordedChange
}

func newMockStreamer() *mockStreamer {
	return &mockStreamer{ch: make(chan *mockStream, 16)}
}

func (m *mockStreamer) Stream(ctx context.Context, query string, dispatch func([]byte) bool) error {
	m.mu.Lock()
	m.opened = append(m.opened, query)
	m.mu.Unlock()

	st := &mockStream{query: query, in: make(chan delivery), gone: make(chan struct{})}
	defer close(st.gone)
	m.ch <- st

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-st.in:
			if ctx.Err() != nil {
				d.ack <- false
				return nil
			}
			switch {
			case d.err != nil:
				d.ack <- true
				return d.err
			case d.end:
				d.ack <- true
				return nil
			}
			open := dispatch(d.data)
			d.ack <- true
			if !open {
				return nil
			}
		}
	}
}

func (m *mockStreamer) openedQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.opened...)
}

func (m *mockStreamer) next(t *testing.T) *mockStream {
	t.Helper()
	return <-m.ch
}

// send delivers payload and returns once the session has processed it. It reports false when the
// stream had already returned or was cancelled.
func (s *mockStream) send(payload string) bool {
	return s.deliver(delivery{data: []byte(payload)})
}

func (s *mockStream) fail(err error) bool {
	return s.deliver(delivery{err: err})
}

func (s *mockStream) end() bool {
	return s.deliver(delivery{end: true})
}

func (s *mockStream) deliver(d delivery) bool {
	d.ack = make(chan bool, 1)
	select {
	case s.in <- d:
		return <-d.ack
	case <-s.gone:
		return false
	}
}

func (v *recordingViewport) Changed(msg models.Message, appended bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.changes = append(v.changes, recordedChange{msg: msg, appended: appended})
}

// updates returns the texts written in place into the message with the given ID.
func (v *recordingViewport) updates(id string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var texts []string
	for _, c := range v.changes {
		if !c.appended && c.msg.ID == id {
			texts = append(texts, c.msg.Text)
		}
	}
	return texts
}

func newTestController(opts chat.Options) (*chat.Controller, *mockStreamer, *recordingViewport) {
	vp := &recordingViewport{}
	st := newMockStreamer()
	return chat.NewController(chat.NewTranscript(vp), st, opts, zerolog.Nop()), st, vp
}
