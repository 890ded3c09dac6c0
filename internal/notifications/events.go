// Package notifications fans realtime post events out to websocket clients,
// through Redis pub/sub when it is configured.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
)

// Event types pushed to clients.
const (
	EventPostCreated         = "post_created"
	EventPostReactionUpdated = "post_reaction_updated"
	EventCommentCreated      = "comment_created"
	EventCommentDeleted      = "comment_deleted"
)

// Event is the JSON frame written to websocket clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Encode returns the wire form of e.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return b, nil
}

// Publisher delivers events to connected clients. Publishing is best-effort;
// callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// PostReactionPayload accompanies EventPostReactionUpdated.
type PostReactionPayload struct {
	PostID uint  `json:"post_id"`
	Likes  int64 `json:"likes"`
}

// CommentPayload accompanies the comment events.
type CommentPayload struct {
	PostID        uint  `json:"post_id"`
	CommentID     uint  `json:"comment_id"`
	CommentsCount int64 `json:"comments_count"`
}

// PostCreatedPayload accompanies EventPostCreated.
type PostCreatedPayload struct {
	PostID uint   `json:"post_id"`
	UserID uint   `json:"user_id"`
	Title  string `json:"title"`
}
