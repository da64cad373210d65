package app

import (
	"encoding/json"
	"log"
	"net"
	"time"

	"screentime/internal/ipc"
	"screentime/internal/usage"
)

// subscriber is one live watch connection. The daemon keeps at most one: a new
// watch replaces the previous subscriber, mirroring an event channel with a
// single sink.
type subscriber struct {
	conn   *net.UnixConn
	enc    *json.Encoder
	gone   chan struct{}
	closed bool
}

// handleWatch registers the connection as the active subscriber and blocks
// until it is replaced, fails, or the daemon shuts down.
func (a *App) handleWatch(conn *net.UnixConn, enc *json.Encoder) {
	sub := &subscriber{conn: conn, enc: enc, gone: make(chan struct{})}

	// All writes to the subscriber connection happen under subMu so the ack
	// cannot interleave with a pushed update.
	a.subMu.Lock()
	if prev := a.subscriber; prev != nil {
		log.Println("Replacing existing usage subscriber.")
		a.removeLocked(prev)
	}
	a.subscriber = sub
	err := enc.Encode(ipc.Response{Success: true, Message: "watching usage updates"})
	a.subMu.Unlock()

	if err != nil {
		a.dropSubscriber(sub)
		return
	}

	select {
	case <-sub.gone:
	case <-a.ctx.Done():
		a.dropSubscriber(sub)
	}
}

// publish pushes one batch of summaries to the active subscriber, dropping it
// on write failure.
func (a *App) publish(summaries []usage.Summary) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	sub := a.subscriber
	if sub == nil {
		return
	}

	sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := sub.enc.Encode(ipc.Response{Success: true, Data: summaries}); err != nil {
		log.Printf("Dropping usage subscriber: %v", err)
		a.subscriber = nil
		a.removeLocked(sub)
		return
	}
	sub.conn.SetWriteDeadline(time.Time{})
	log.Printf("Pushed %d summaries to subscriber", len(summaries))
}

func (a *App) dropSubscriber(sub *subscriber) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	if a.subscriber == sub {
		a.subscriber = nil
	}
	a.removeLocked(sub)
}

func (a *App) dropAllSubscribers() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	if a.subscriber != nil {
		a.removeLocked(a.subscriber)
		a.subscriber = nil
	}
}

// removeLocked signals the subscriber's goroutine; callers hold subMu.
func (a *App) removeLocked(sub *subscriber) {
	if !sub.closed {
		sub.closed = true
		close(sub.gone)
	}
}
