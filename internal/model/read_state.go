package model

import (
	"fmt"
	"strings"
)

// ReadState is the read state of one notification for one viewer.
type ReadState int

const (
	// ReadStateUnread: not globally read and the viewer has no receipt.
	ReadStateUnread ReadState = iota
	// ReadStateReadByViewer: the viewer acknowledged a broadcast that is
	// still waiting on other audience members.
	ReadStateReadByViewer
	// ReadStateRead: the stored flag is set.
	ReadStateRead
)

// ResolveReadState is the single definition of effective read status.
// The store's SQL predicate (is_read OR receipt exists) must agree with it.
func ResolveReadState(globallyRead, viewerReceipt bool) ReadState {
	switch {
	case globallyRead:
		return ReadStateRead
	case viewerReceipt:
		return ReadStateReadByViewer
	default:
		return ReadStateUnread
	}
}

// IsRead reports whether the viewer should see the notification as read.
func (s ReadState) IsRead() bool {
	return s != ReadStateUnread
}

func (s ReadState) String() string {
	switch s {
	case ReadStateReadByViewer:
		return "read_by_viewer"
	case ReadStateRead:
		return "read"
	default:
		return "unread"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ReadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusFilter restricts a listing by effective read status.
type StatusFilter string

const (
	StatusAll    StatusFilter = ""
	StatusRead   StatusFilter = "read"
	StatusUnread StatusFilter = "unread"
)

// ParseStatusFilter accepts "", "read", "unread" (case-insensitive).
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case StatusAll, StatusRead, StatusUnread:
		return f, nil
	default:
		return StatusAll, fmt.Errorf("invalid status filter %q: must be read or unread", s)
	}
}

// Matches reports whether a notification in state s passes the filter.
func (f StatusFilter) Matches(s ReadState) bool {
	switch f {
	case StatusRead:
		return s.IsRead()
	case StatusUnread:
		return !s.IsRead()
	default:
		return true
	}
}
