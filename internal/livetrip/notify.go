package livetrip

import (
	"sync"
	"time"
)

// Notification levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
)

const maxNotifications = 20

// Notification is a transient message for the user.
type Notification struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

type notifier struct {
	mu    sync.Mutex
	now   func() time.Time
	queue []Notification
}

func (n *notifier) push(level, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now
	if n.now != nil {
		now = n.now
	}
	n.queue = append(n.queue, Notification{Level: level, Message: msg, Time: now()})
	if len(n.queue) > maxNotifications {
		n.queue = n.queue[len(n.queue)-maxNotifications:]
	}
}

func (n *notifier) drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.queue
	n.queue = nil
	return out
}

// Notifications returns and clears the pending notifications.
func (s *Session) Notifications() []Notification {
	return s.notifications.drain()
}
