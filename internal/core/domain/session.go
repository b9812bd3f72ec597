package domain

import (
	"time"
)

type RoomID string
type UserID string

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// BroadcastSession is the single live broadcast of a room. At most one
// session per room exists at any instant; the fanout service is the
// authority, clients hold a cooperative copy.
type BroadcastSession struct {
	Room            RoomID
	Broadcaster     UserID
	BroadcasterName string
	StartedAt       time.Time
}

// ListenerState is local to one client and one room. Muted suppresses
// local playback only; it is never transmitted.
type ListenerState struct {
	Listening bool
	Muted     bool
}

// Identity is the per-room identity the surrounding application hands
// to this subsystem.
type Identity struct {
	UserID   UserID
	Username string
	Role     UserRole
}
