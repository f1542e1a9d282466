// Package events is the in-process bus the socket client publishes push
// events on and the photostream client consumes.
package events

import (
	"github.com/leandro-lugaresi/hub"
)

type Hub = hub.Hub
type Data = hub.Fields
type Message = hub.Message
type Subscription = hub.Subscription

// Topics published by the socket client
const (
	PhotoNew         = "photo.new"
	PhotoDeleted     = "photo.deleted"
	CommentNew       = "comment.new"
	CommentDeleted   = "comment.deleted"
	VoteNew          = "vote.new"
	SocketConnect    = "socket.connect"
	SocketDisconnect = "socket.disconnect"
	SocketError      = "socket.error"
)

// Field keys carried by messages
const (
	FieldPayload = "payload"
	FieldValue   = "value"
	FieldError   = "error"
)

// Server event names as they arrive on the wire
const (
	EventNewPhoto       = "new_photo"
	EventNewComment     = "new_comment"
	EventCommentDeleted = "comment_deleted"
	EventPhotoDeleted   = "photo_deleted"
	EventNewVote        = "new_vote"
)

var channelCap = 100
var sharedHub = NewHub()

var eventTopics = map[string]string{
	EventNewPhoto:       PhotoNew,
	EventNewComment:     CommentNew,
	EventCommentDeleted: CommentDeleted,
	EventPhotoDeleted:   PhotoDeleted,
	EventNewVote:        VoteNew,
}

func NewHub() *Hub {
	return hub.New()
}

func SharedHub() *Hub {
	return sharedHub
}

// TopicFor maps a server event name to its bus topic
func TopicFor(event string) (string, bool) {
	topic, ok := eventTopics[event]
	return topic, ok
}

// Publish sends a message on h
func Publish(h *Hub, topic string, data Data) {
	h.Publish(Message{
		Name:   topic,
		Fields: data,
	})
}

// Subscribe registers a non-blocking subscription on h. Slow consumers drop
// messages instead of stalling the socket reader.
func Subscribe(h *Hub, topics ...string) Subscription {
	return h.NonBlockingSubscribe(channelCap, topics...)
}

func Unsubscribe(h *Hub, s Subscription) {
	h.Unsubscribe(s)
}

// Payload returns the raw JSON payload of a push event
func Payload(msg Message) []byte {
	switch v := msg.Fields[FieldPayload].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}
