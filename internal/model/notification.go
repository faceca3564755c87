package model

import (
	"strings"
	"time"
)

// Role is a user's role inside a tenant.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleManager    Role = "MANAGER"
)

// ParseRole normalizes a role string as carried in auth contexts.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// IsAdmin reports whether the role is ADMIN.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User is the subset of a tenant user the notification core needs.
type User struct {
	UserID   string
	Role     Role
	FullName string
}

// Audience decides which users receive broadcast notifications.
type Audience struct {
	IncludeAdmins bool
}

// Includes reports whether a user with the given role belongs to the broadcast audience.
func (a Audience) Includes(role Role) bool {
	return a.IncludeAdmins || !role.IsAdmin()
}

// Notification is a stored notification row.
// A nil UserID marks a broadcast to the whole audience.
type Notification struct {
	NotificationID int64     `json:"notification_id"`
	UserID         *string   `json:"user_id,omitempty"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by"`
	FormID         *string   `json:"form_id,omitempty"`
	SubmissionID   *string   `json:"submission_id,omitempty"`
	IsRead         bool      `json:"-"`
}

// IsBroadcast reports whether the notification targets the whole audience.
func (n *Notification) IsBroadcast() bool {
	return n.UserID == nil
}

// AddressedTo reports whether an individual notification targets userID.
func (n *Notification) AddressedTo(userID string) bool {
	return n.UserID != nil && *n.UserID == userID
}

// NotificationView is a notification as seen by one viewer.
type NotificationView struct {
	Notification
	FormTitle *string   `json:"form_title,omitempty"`
	Broadcast bool      `json:"broadcast"`
	ReadState ReadState `json:"read_state"`
	IsRead    bool      `json:"is_read"`
}

// NewNotificationView resolves the viewer's read state for n.
func NewNotificationView(n Notification, formTitle *string, viewerReceipt bool) *NotificationView {
	state := ResolveReadState(n.IsRead, viewerReceipt)
	return &NotificationView{
		Notification: n,
		FormTitle:    formTitle,
		Broadcast:    n.IsBroadcast(),
		ReadState:    state,
		IsRead:       state.IsRead(),
	}
}

// AckStatus is the outcome of an acknowledgment.
type AckStatus string

const (
	AckStatusRead        AckStatus = "READ"
	AckStatusAlreadyRead AckStatus = "ALREADY_READ"
)

// AckResult reports what an acknowledgment changed.
type AckResult struct {
	NotificationID int64     `json:"notification_id"`
	Status         AckStatus `json:"status"`
	// Promoted is set when this acknowledgment completed a broadcast and
	// flipped its stored flag.
	Promoted bool `json:"promoted"`
}
