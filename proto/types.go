// Package proto holds the wire-shaped value records that the RPC layer
// converts to and from session store records. In the production system
// these are generated from a protobuf schema; here they are plain structs
// because the schema itself is an external collaborator — this package
// only needs to carry the shape the store hands back to callers.
package proto

// ParticipantLocation describes where a room participant currently is.
// The store only ever produces the External variant; the
// SharedProject variant exists for shape-completeness with the wire schema
// and is populated by the RPC layer once a participant opens a project,
// which happens outside the store.
type ParticipantLocation struct {
	External      bool
	SharedProject ProjectRef
}

// ProjectRef is the SharedProject payload of a ParticipantLocation.
type ProjectRef struct {
	ProjectID uint64
}

// Participant is one entry in a Room's participant list.
type Participant struct {
	UserID     int32
	PeerID     uint32
	ProjectIDs []uint64
	Location   ParticipantLocation
}

// Room is the call session record returned by the room/call operations.
type Room struct {
	Participants    []Participant
	PendingUserIDs  []int32
}

// Clone returns a copy that shares no mutable state with r. Callers that
// hold a Room across a store boundary snapshot it first.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	clone := &Room{
		Participants:   make([]Participant, len(r.Participants)),
		PendingUserIDs: append([]int32(nil), r.PendingUserIDs...),
	}
	for i, p := range r.Participants {
		p.ProjectIDs = append([]uint64(nil), p.ProjectIDs...)
		clone.Participants[i] = p
	}
	return clone
}

// WorktreeMetadata is the caller-supplied description of a worktree used by
// UpdateProject to reconcile the worktree map.
type WorktreeMetadata struct {
	ID       uint64
	RootName string
	Visible  bool
}

// Entry is one file/directory entry inside a worktree.
type Entry struct {
	ID   uint64
	Path string
}

// DiagnosticSummary is a per-path diagnostic count snapshot.
type DiagnosticSummary struct {
	Path         string
	ErrorCount   uint32
	WarningCount uint32
}

// LanguageServer records a language server the host started for a project.
type LanguageServer struct {
	ID   uint64
	Name string
}

// JoinProject is the wire request a Receipt answers exactly once.
type JoinProject struct {
	ProjectID uint64
}

// ProjectMetadata is a contact's online, host-owned project, as surfaced to
// other users in their contacts list.
type ProjectMetadata struct {
	ID                        uint64
	VisibleWorktreeRootNames  []string
	Guests                    []int32
}

// Contact is a single row of a user's contacts list.
type Contact struct {
	UserID        int32
	Online        bool
	ShouldNotify  bool
	Projects      []ProjectMetadata
}

// IncomingContactRequest is a pending contact request from another user.
type IncomingContactRequest struct {
	RequesterID  int32
	ShouldNotify bool
}

// UpdateContacts is the full contacts snapshot sent to a client on connect.
type UpdateContacts struct {
	Contacts         []Contact
	OutgoingRequests []int32
	IncomingRequests []IncomingContactRequest
}
