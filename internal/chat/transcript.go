package chat

import (
	"sync"
	"time"

	"github.com/MegaGrindStone/sse-chat/internal/models"
	"github.com/google/uuid"
)

// Viewport receives every change made to a Transcript so it can redraw and keep the newest content
// visible. Changed is called with the transcript lock held, so changes arrive in the order they were
// made; implementations must not call back into the Transcript. appended is set when msg is a new
// entry rather than an in-place text replacement.
type Viewport interface {
	Changed(msg models.Message, appended bool)
}

// Handle is an opaque reference to a single transcript entry. The zero Handle is never valid.
type Handle struct {
	owner *Transcript
	id    string
}

// Valid reports whether h refers to an entry of some transcript.
func (h Handle) Valid() bool {
	return h.owner != nil && h.id != ""
}

// ID returns the identifier of the referenced message.
func (h Handle) ID() string {
	return h.id
}

// Transcript is the ordered, append-only log of displayed messages. It is safe for concurrent use.
type Transcript struct {
	mu       sync.Mutex
	messages []models.Message
	index    map[string]int

	viewport Viewport
	now      func() time.Time
}

// NewTranscript creates an empty transcript that reports its changes to viewport. A nil viewport is
// allowed.
func NewTranscript(viewport Viewport) *Transcript {
	return &Transcript{
		index:    make(map[string]int),
		viewport: viewport,
		now:      time.Now,
	}
}

// Append creates a new message stamped with the current time, appends it to the end of the
// transcript and returns a handle for later in-place text replacement.
func (t *Transcript) Append(text string, author models.Author) Handle {
	t.mu.Lock()
	msg := models.Message{
		ID:        uuid.New().String(),
		Author:    author,
		Text:      text,
		Timestamp: t.now(),
	}
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
	t.notify(msg, true)
	t.mu.Unlock()

	return Handle{owner: t, id: msg.ID}
}

// UpdateText replaces the text of the message referenced by h. It leaves every other field and every
// other message untouched. It reports false and does nothing when h does not belong to this
// transcript.
func (t *Transcript) UpdateText(h Handle, text string) bool {
	if h.owner != t {
		return false
	}

	t.mu.Lock()
	i, ok := t.index[h.id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	t.messages[i].Text = text
	t.notify(t.messages[i], false)
	t.mu.Unlock()

	return true
}

func (t *Transcript) notify(msg models.Message, appended bool) {
	if t.viewport != nil {
		t.viewport.Changed(msg, appended)
	}
}

// Message returns the message referenced by h.
func (t *Transcript) Message(h Handle) (models.Message, bool) {
	if h.owner != t {
		return models.Message{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[h.id]
	if !ok {
		return models.Message{}, false
	}
	return t.messages[i], true
}

// Messages returns a snapshot of the transcript in insertion order.
func (t *Transcript) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs := make([]models.Message, len(t.messages))
	copy(msgs, t.messages)
	return msgs
}

// Len returns the number of messages in the transcript.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.messages)
}
