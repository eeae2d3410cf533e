// Package notice keeps users' in-app notifications. Inbox state changes go
// through Reduce so the transitions can be tested without a database.
package notice

import (
	"sort"
	"time"

	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/db"
	"github.com/gabrieldiassantiago/backend-biblioteca-sub001/internal/repo"
	"github.com/google/uuid"
)

// Inbox is one user's notifications, newest first
type Inbox struct {
	Items  []db.Notification `json:"items"`
	Unread int               `json:"unread"`
}

// Action is an inbox state transition
type Action interface {
	isAction()
}

// Received adds a notification. A second notification for the same loan and
// kind is ignored.
type Received struct {
	Notification db.Notification
}

// MarkRead marks one notification read at At
type MarkRead struct {
	ID uuid.UUID
	At time.Time
}

// MarkAllRead marks every unread notification read at At
type MarkAllRead struct {
	At time.Time
}

func (Received) isAction()    {}
func (MarkRead) isAction()    {}
func (MarkAllRead) isAction() {}

// NewInbox builds an inbox from stored notifications
func NewInbox(items []db.Notification) Inbox {
	in := Inbox{Items: append([]db.Notification(nil), items...)}
	sortItems(in.Items)
	in.Unread = countUnread(in.Items)
	return in
}

// Reduce applies an action and returns the new inbox. The input is not
// modified.
func Reduce(in Inbox, action Action) (Inbox, error) {
	items := append([]db.Notification(nil), in.Items...)

	switch a := action.(type) {
	case Received:
		for _, existing := range items {
			if existing.ID == a.Notification.ID || sameSubject(existing, a.Notification) {
				return NewInbox(items), nil
			}
		}
		items = append(items, a.Notification)

	case MarkRead:
		found := false
		for i := range items {
			if items[i].ID != a.ID {
				continue
			}
			found = true
			if items[i].ReadAt == nil {
				at := a.At
				items[i].ReadAt = &at
			}
		}
		if !found {
			return in, repo.ErrNotificationNotFound
		}

	case MarkAllRead:
		for i := range items {
			if items[i].ReadAt == nil {
				at := a.At
				items[i].ReadAt = &at
			}
		}
	}

	return NewInbox(items), nil
}

// NewlyRead lists the notifications read in after but not in before
func NewlyRead(before, after Inbox) []uuid.UUID {
	wasRead := make(map[uuid.UUID]bool, len(before.Items))
	for _, n := range before.Items {
		wasRead[n.ID] = n.ReadAt != nil
	}

	var ids []uuid.UUID
	for _, n := range after.Items {
		if n.ReadAt != nil && !wasRead[n.ID] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func sameSubject(a, b db.Notification) bool {
	return a.LoanID != nil && b.LoanID != nil && *a.LoanID == *b.LoanID && a.Kind == b.Kind
}

func sortItems(items []db.Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func countUnread(items []db.Notification) int {
	n := 0
	for _, item := range items {
		if item.ReadAt == nil {
			n++
		}
	}
	return n
}
