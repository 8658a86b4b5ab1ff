// Package signalbus routes external task signals (completion, cancellation)
// to the workflow waits listening for them. Delivery to a task nobody is
// waiting on is dropped, which makes duplicate delivery of an
// already-consumed signal a natural no-op.
package signalbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Stable signal names forming the wire contract with external callers.
const (
	SignalTaskCompleted = "taskCompleted"
	SignalTaskCancelled = "taskCancelled"
)

// Signal is one named event scoped to a task.
type Signal struct {
	ID        string
	Name      string
	TaskID    string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type subKey struct {
	name   string
	taskID string
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[subKey]map[string]chan *Signal
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[subKey]map[string]chan *Signal),
	}
}

// Subscribe registers interest in a (name, taskID) pair and returns the
// subscription id and the delivery channel.
func (b *Bus) Subscribe(name, taskID string, bufSize int) (string, <-chan *Signal) {
	id := ulid.Make().String()
	ch := make(chan *Signal, bufSize)
	k := subKey{name: name, taskID: taskID}

	b.mu.Lock()
	if b.subscribers[k] == nil {
		b.subscribers[k] = make(map[string]chan *Signal)
	}
	b.subscribers[k][id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes the subscription.
func (b *Bus) Unsubscribe(name, taskID, id string) {
	k := subKey{name: name, taskID: taskID}
	b.mu.Lock()
	if subs, ok := b.subscribers[k]; ok {
		if ch, ok := subs[id]; ok {
			close(ch)
			delete(subs, id)
		}
		if len(subs) == 0 {
			delete(b.subscribers, k)
		}
	}
	b.mu.Unlock()
}

// Deliver fans the signal out to every subscriber of its (name, taskID)
// pair and reports whether anyone was listening.
func (b *Bus) Deliver(sig *Signal) bool {
	k := subKey{name: sig.Name, taskID: sig.TaskID}
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subscribers[k]
	delivered := false
	for _, ch := range subs {
		select {
		case ch <- sig:
			delivered = true
		default:
			// buffer full, drop for this subscriber
		}
	}
	return delivered
}

// DeliverNew marshals payload and delivers it under name/taskID.
func (b *Bus) DeliverNew(name, taskID string, payload any) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	return b.Deliver(&Signal{
		ID:        ulid.Make().String(),
		Name:      name,
		TaskID:    taskID,
		Payload:   data,
		CreatedAt: time.Now(),
	}), nil
}
