package models

import "time"

// Message represents an individual entry of the chat transcript. It carries its unique identifier,
// the author, the displayed text and the moment it was created. Only the in-progress bot placeholder
// ever has its Text replaced after creation.
type Message struct {
	ID        string
	Author    Author
	Text      string
	Timestamp time.Time
}

// Author represents who wrote a message.
type Author string

const (
	// AuthorUser represents text typed by the user.
	AuthorUser Author = "user"
	// AuthorBot represents text produced by the backend, including the streaming placeholder.
	AuthorBot Author = "bot"
)

// TimestampLayout is the layout used to display message timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DisplayTimestamp returns the timestamp in the layout shown above each message.
func (m Message) DisplayTimestamp() string {
	return m.Timestamp.UTC().Format(TimestampLayout)
}
