// Package pubsub implements a process-wide named-topic message router.
// Topics are created lazily on first attach; subscribers receive
// messages in the order they were sent, and can be muted (deactivated)
// without losing their place in the topic.
package pubsub

import (
	"log"
	"os"
)

// SubscriberID identifies one subscriber within a topic. IDs are handed
// out from an incrementing counter that wraps around and skips any value
// still in use, so a long-lived topic never runs out of IDs.
type SubscriberID uint32

type subscriber[M any] struct {
	id     SubscriberID
	active bool
	ch     chan M
}

type topic[M any] struct {
	subscribers map[SubscriberID]*subscriber[M]
	nextID      SubscriberID
}

func newTopic[M any]() *topic[M] {
	return &topic[M]{subscribers: map[SubscriberID]*subscriber[M]{}}
}

func (t *topic[M]) allocateID() SubscriberID {
	for {
		id := t.nextID
		t.nextID++
		if _, inUse := t.subscribers[id]; !inUse {
			return id
		}
	}
}

type request[M any] struct {
	kind    string // "attach", "detach", "activate", "deactivate", "send"
	topicID string
	subID   SubscriberID
	msg     M
	reply   chan *TopicHandle[M]
}

// PubSub is the shared router for one message type M. All topic and
// subscriber state is owned by a single goroutine; every public method
// round-trips a request over a channel, so topics never need their own
// locks.
type PubSub[M any] struct {
	requests chan request[M]
	logger   *log.Logger
}

// New starts a PubSub's owning goroutine.
func New[M any](logger *log.Logger) *PubSub[M] {
	if logger == nil {
		logger = log.New(os.Stderr, "[pubsub] ", log.LstdFlags)
	}
	ps := &PubSub[M]{
		requests: make(chan request[M], 256),
		logger:   logger,
	}
	go ps.run()
	return ps
}

func (ps *PubSub[M]) run() {
	topics := map[string]*topic[M]{}
	for req := range ps.requests {
		switch req.kind {
		case "attach":
			t, ok := topics[req.topicID]
			if !ok {
				t = newTopic[M]()
				topics[req.topicID] = t
			}
			id := t.allocateID()
			sub := &subscriber[M]{id: id, active: true, ch: make(chan M, 64)}
			t.subscribers[id] = sub
			req.reply <- &TopicHandle[M]{ps: ps, topicID: req.topicID, subID: id, Messages: sub.ch}

		case "detach":
			if t, ok := topics[req.topicID]; ok {
				if sub, ok := t.subscribers[req.subID]; ok {
					close(sub.ch)
					delete(t.subscribers, req.subID)
				}
			}

		case "activate":
			if t, ok := topics[req.topicID]; ok {
				if sub, ok := t.subscribers[req.subID]; ok {
					sub.active = true
				}
			}

		case "deactivate":
			if t, ok := topics[req.topicID]; ok {
				if sub, ok := t.subscribers[req.subID]; ok {
					sub.active = false
				}
			}

		case "send":
			t, ok := topics[req.topicID]
			if !ok {
				// Sending to a topic nobody ever attached to is a no-op.
				continue
			}
			for _, sub := range t.subscribers {
				if !sub.active {
					continue
				}
				select {
				case sub.ch <- req.msg:
				default:
					ps.logger.Printf("topic %s: dropping message for slow subscriber %d", req.topicID, sub.id)
				}
			}
		}
	}
}

// Attach creates topicID if it does not already exist and returns a new
// TopicHandle subscribed to it.
func (ps *PubSub[M]) Attach(topicID string) *TopicHandle[M] {
	reply := make(chan *TopicHandle[M], 1)
	ps.requests <- request[M]{kind: "attach", topicID: topicID, reply: reply}
	return <-reply
}

// Send broadcasts msg to every active subscriber of topicID, in the
// order Send is called. A topicID nobody has attached to yet is a no-op.
func (ps *PubSub[M]) Send(topicID string, msg M) {
	ps.requests <- request[M]{kind: "send", topicID: topicID, msg: msg}
}

// TopicHandle is a single subscriber's view of a topic: a receive-only
// channel of messages plus controls over this subscriber's own
// membership.
type TopicHandle[M any] struct {
	ps       *PubSub[M]
	topicID  string
	subID    SubscriberID
	Messages <-chan M
}

// Send broadcasts msg to the handle's topic, equivalent to calling Send
// on the owning PubSub directly.
func (h *TopicHandle[M]) Send(msg M) {
	h.ps.Send(h.topicID, msg)
}

// Activate resumes delivery to this subscriber.
func (h *TopicHandle[M]) Activate() {
	h.ps.requests <- request[M]{kind: "activate", topicID: h.topicID, subID: h.subID}
}

// Deactivate mutes this subscriber without detaching it: messages sent
// while deactivated are simply not delivered, and do not queue up.
func (h *TopicHandle[M]) Deactivate() {
	h.ps.requests <- request[M]{kind: "deactivate", topicID: h.topicID, subID: h.subID}
}

// Detach removes this subscriber from its topic and closes Messages.
func (h *TopicHandle[M]) Detach() {
	h.ps.requests <- request[M]{kind: "detach", topicID: h.topicID, subID: h.subID}
}
