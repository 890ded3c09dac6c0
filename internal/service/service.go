// Package service holds the blog's use cases. Services validate input, apply
// ownership rules and keep the post cache and realtime clients in step with
// repository writes.
package service

import (
	"context"

	"inkwell/internal/cache"
	"inkwell/internal/middleware"
	"inkwell/internal/notifications"
)

const (
	maxTitleLen   = 300
	maxContentLen = 50000
	maxCommentLen = 10000
)

// invalidatePosts drops cached copies of posts after a committed write.
func invalidatePosts(ctx context.Context, c *cache.Cache, ids ...uint) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cache.PostKey(id))
	}
	c.Invalidate(ctx, keys...)
}

// publish delivers ev and only logs failures; realtime delivery never fails a
// request whose write already committed.
func publish(ctx context.Context, p notifications.Publisher, ev notifications.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish event", "type", ev.Type, "error", err)
	}
}
