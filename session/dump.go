package session

// DumpView is a structured debugging snapshot of the store. It
// omits ephemeral or non-serializable fields: channels entirely, each
// worktree's entries and diagnostic summaries, each collaborator's
// last_activity, and each project's join_requests. It is a diagnostic
// artifact only — never reloaded into a Store.
type DumpView struct {
	Connections       map[ConnectionID]ConnectionDump       `json:"connections"`
	ConnectionsByUser map[UserID]UserConnectionDump         `json:"connectionsByUser"`
	NextRoomID        RoomID                                `json:"nextRoomId"`
	Rooms             map[RoomID]RoomDump                   `json:"rooms"`
	Projects          map[ProjectID]ProjectDump             `json:"projects"`
}

type ConnectionDump struct {
	UserID            UserID       `json:"userId"`
	Admin             bool         `json:"admin"`
	Projects          []ProjectID  `json:"projects"`
	RequestedProjects []ProjectID  `json:"requestedProjects"`
}

type UserConnectionDump struct {
	ConnectionIDs []ConnectionID `json:"connectionIds"`
}

type RoomDump struct {
	ParticipantUserIDs []int32 `json:"participantUserIds"`
	PendingUserIDs     []int32 `json:"pendingUserIds"`
}

type CollaboratorDump struct {
	UserID    UserID    `json:"userId"`
	ReplicaID ReplicaID `json:"replicaId"`
	Admin     bool      `json:"admin"`
}

type WorktreeDump struct {
	RootName   string `json:"rootName"`
	Visible    bool   `json:"visible"`
	ScanID     uint64 `json:"scanId"`
	IsComplete bool   `json:"isComplete"`
}

type ProjectDump struct {
	Online           bool                          `json:"online"`
	HostConnectionID ConnectionID                  `json:"hostConnectionId"`
	Host             CollaboratorDump              `json:"host"`
	Guests           map[ConnectionID]CollaboratorDump `json:"guests"`
	ActiveReplicaIDs []ReplicaID                   `json:"activeReplicaIds"`
	Worktrees        map[WorktreeID]WorktreeDump   `json:"worktrees"`
	LanguageServerCount int                        `json:"languageServerCount"`
}

// Dump produces a structured, serialization-ready snapshot of the store.
func (s *Store) Dump() DumpView {
	view := DumpView{
		Connections:       make(map[ConnectionID]ConnectionDump, len(s.connections)),
		ConnectionsByUser: make(map[UserID]UserConnectionDump, len(s.connectionsByUser)),
		NextRoomID:        s.nextRoomID,
		Rooms:             make(map[RoomID]RoomDump, len(s.rooms)),
		Projects:          make(map[ProjectID]ProjectDump, len(s.projects)),
	}

	for id, conn := range s.connections {
		projects := make([]ProjectID, 0, len(conn.projects))
		for p := range conn.projects {
			projects = append(projects, p)
		}
		requested := make([]ProjectID, 0, len(conn.requestedProjects))
		for p := range conn.requestedProjects {
			requested = append(requested, p)
		}
		view.Connections[id] = ConnectionDump{
			UserID:            conn.userID,
			Admin:             conn.admin,
			Projects:          projects,
			RequestedProjects: requested,
		}
	}

	for userID, state := range s.connectionsByUser {
		ids := make([]ConnectionID, 0, len(state.connectionIDs))
		for id := range state.connectionIDs {
			ids = append(ids, id)
		}
		view.ConnectionsByUser[userID] = UserConnectionDump{ConnectionIDs: ids}
	}

	for roomID, room := range s.rooms {
		participantUserIDs := make([]int32, 0, len(room.Participants))
		for _, p := range room.Participants {
			participantUserIDs = append(participantUserIDs, p.UserID)
		}
		view.Rooms[roomID] = RoomDump{
			ParticipantUserIDs: participantUserIDs,
			PendingUserIDs:     append([]int32(nil), room.PendingUserIDs...),
		}
	}

	for projectID, project := range s.projects {
		guests := make(map[ConnectionID]CollaboratorDump, len(project.Guests))
		for id, guest := range project.Guests {
			guests[id] = CollaboratorDump{UserID: guest.UserID, ReplicaID: guest.ReplicaID, Admin: guest.Admin}
		}
		activeReplicaIDs := make([]ReplicaID, 0, len(project.ActiveReplicaIDs))
		for id := range project.ActiveReplicaIDs {
			activeReplicaIDs = append(activeReplicaIDs, id)
		}
		worktrees := make(map[WorktreeID]WorktreeDump, len(project.Worktrees))
		for id, wt := range project.Worktrees {
			worktrees[id] = WorktreeDump{RootName: wt.RootName, Visible: wt.Visible, ScanID: wt.ScanID, IsComplete: wt.IsComplete}
		}
		view.Projects[projectID] = ProjectDump{
			Online:              project.Online,
			HostConnectionID:    project.HostConnectionID,
			Host:                CollaboratorDump{UserID: project.Host.UserID, ReplicaID: project.Host.ReplicaID, Admin: project.Host.Admin},
			Guests:              guests,
			ActiveReplicaIDs:    activeReplicaIDs,
			Worktrees:           worktrees,
			LanguageServerCount: len(project.LanguageServers),
		}
	}

	return view
}
