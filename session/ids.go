// Package session implements the in-memory session state store described
// in the collab server design: the single structure that tracks connections,
// users, projects, channels, and rooms, and mediates every state-changing
// RPC by mutating its tables and returning the set of connections to notify.
//
// The Store is not safe for concurrent use. Operations are synchronous and
// non-suspending; the caller (the RPC dispatch loop) is responsible for
// serializing access, either by running on a single goroutine or by holding
// an exclusive lock for the duration of each call.
package session

// UserID identifies an account. A user may have many concurrent connections.
type UserID int32

// ProjectID identifies a host's workspace.
type ProjectID int32

// ChannelID identifies a pub/sub group.
type ChannelID int32

// ConnectionID identifies one client socket.
type ConnectionID uint32

// RoomID identifies a call session. Allocated by the store itself.
type RoomID uint64

// ReplicaID is a project-scoped small integer identifying a collaborator's
// editing identity. The host is always 0; guests get 1, 2, ... smallest
// unused value first.
type ReplicaID uint16

// WorktreeID identifies a worktree within a project.
type WorktreeID uint64

// Receipt is an opaque handle carried in from the RPC layer that records
// the connection a pending request came from. The store stores receipts
// and returns them to the caller but never interprets their contents beyond
// SenderID.
type Receipt struct {
	SenderID  ConnectionID
	RequestID uint64
}
