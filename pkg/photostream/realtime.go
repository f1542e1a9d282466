package photostream

import (
	"context"
	"errors"

	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/events"
	"github.com/zfogg/photostream/cli/pkg/logger"
)

var pushTopics = []string{
	events.PhotoNew,
	events.PhotoDeleted,
	events.CommentNew,
	events.CommentDeleted,
	events.VoteNew,
	events.SocketConnect,
	events.SocketDisconnect,
	events.SocketError,
}

// Connect subscribes to push events and opens the socket
func (c *Client) Connect(ctx context.Context) error {
	if c.socket == nil {
		return ErrNoSocket
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sub == nil {
		sub := events.Subscribe(c.hub, pushTopics...)
		c.sub = &sub
		c.subStop = make(chan struct{})
		c.subDone = make(chan struct{})
		go c.consume(sub, c.subStop, c.subDone)
	}
	c.mu.Unlock()

	return c.socket.Connect(ctx)
}

// Disconnect closes the socket and stops delivering push events
func (c *Client) Disconnect() {
	if c.socket != nil {
		_ = c.socket.Disconnect()
	}

	c.mu.Lock()
	sub, stop, done := c.sub, c.subStop, c.subDone
	c.sub, c.subStop, c.subDone = nil, nil, nil
	c.mu.Unlock()

	if sub != nil {
		events.Unsubscribe(c.hub, *sub)
		close(stop)
		<-done
	}
}

// IsConnected reports whether the socket is up
func (c *Client) IsConnected() bool {
	return c.socket != nil && c.socket.IsConnected()
}

func (c *Client) consume(sub events.Subscription, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case msg, ok := <-sub.Receiver:
			if !ok {
				return
			}
			c.handlePush(msg)
		case <-stop:
			return
		}
	}
}

func (c *Client) handlePush(msg events.Message) {
	if raw := events.Payload(msg); raw != nil {
		logger.Debug("Push event", "topic", msg.Name, "payload", string(raw))
	}

	switch v := msg.Fields[events.FieldValue].(type) {
	case *api.Photo:
		c.storeImage(v)
		c.notifyPhotos(func(l PhotoListener) { l.OnNewPhoto(v) })
		return
	case *api.PhotoDeleted:
		c.forgetPhoto(v.ID)
		c.notifyPhotos(func(l PhotoListener) { l.OnPhotoDeleted(v.ID) })
		return
	case *api.Comment:
		c.evictComments(v.PhotoID)
		c.patchPhoto(v.PhotoID, (*api.Photo).IncrementComments)
		c.notifyComments(func(l CommentListener) { l.OnNewComment(v) })
		return
	case *api.CommentDeleted:
		c.dropCachedComment(v.PhotoID, v.ID)
		c.patchPhoto(v.PhotoID, (*api.Photo).DecrementComments)
		c.notifyComments(func(l CommentListener) { l.OnCommentDeleted(v.PhotoID, v.ID) })
		return
	case *api.Vote:
		c.patchPhoto(v.PhotoID, func(p *api.Photo) { p.SetVotes(v.Votes) })
		c.notifyVotes(func(l VoteListener) { l.OnNewVote(v) })
		return
	}

	var err error
	if s, ok := msg.Fields[events.FieldError].(string); ok && s != "" {
		err = errors.New(s)
	}

	switch msg.Name {
	case events.SocketConnect:
		c.notifyConnection(func(l ConnectionListener) { l.OnConnected() })
	case events.SocketDisconnect:
		c.notifyConnection(func(l ConnectionListener) { l.OnDisconnected(err) })
	case events.SocketError:
		c.notifyConnection(func(l ConnectionListener) { l.OnConnectionError(err) })
	default:
		logger.Debug("Ignoring push message", "topic", msg.Name)
	}
}
