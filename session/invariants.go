package session

import "fmt"

// CheckInvariants walks every table and asserts the cross-index invariants
// that must hold between them. It is test-only: never call this on the hot
// path. Returns the first violation found, or nil if the store is consistent.
func (s *Store) CheckInvariants() error {
	for connectionID, conn := range s.connections {
		for projectID := range conn.projects {
			project, ok := s.projects[projectID]
			if !ok {
				return fmt.Errorf("connection %d references missing project %d", connectionID, projectID)
			}
			if project.HostConnectionID != connectionID {
				if _, isGuest := project.Guests[connectionID]; !isGuest {
					return fmt.Errorf("connection %d has project %d but is neither host nor guest", connectionID, projectID)
				}
			}

			for worktreeID, worktree := range project.Worktrees {
				paths := make(map[string]uint64)
				for entryID, entry := range worktree.Entries {
					if prevID, dup := paths[entry.Path]; dup {
						return fmt.Errorf("worktree %d: duplicate path %q for entries %d and %d", worktreeID, entry.Path, prevID, entryID)
					}
					paths[entry.Path] = entryID
				}
			}
		}

		for channelID := range conn.channels {
			ch, ok := s.channels[channelID]
			if !ok {
				return fmt.Errorf("connection %d subscribes to missing channel %d", connectionID, channelID)
			}
			if _, ok := ch.connectionIDs[connectionID]; !ok {
				return fmt.Errorf("channel %d does not list subscriber %d", channelID, connectionID)
			}
		}

		userState, ok := s.connectionsByUser[conn.userID]
		if !ok {
			return fmt.Errorf("connection %d's user %d has no connections-by-user row", connectionID, conn.userID)
		}
		if _, ok := userState.connectionIDs[connectionID]; !ok {
			return fmt.Errorf("connections-by-user[%d] does not list connection %d", conn.userID, connectionID)
		}
	}

	for userID, state := range s.connectionsByUser {
		for connectionID := range state.connectionIDs {
			conn, ok := s.connections[connectionID]
			if !ok {
				return fmt.Errorf("connections-by-user[%d] references missing connection %d", userID, connectionID)
			}
			if conn.userID != userID {
				return fmt.Errorf("connection %d has user %d, but is indexed under user %d", connectionID, conn.userID, userID)
			}
		}
	}

	for projectID, project := range s.projects {
		hostConn, ok := s.connections[project.HostConnectionID]
		if !ok {
			return fmt.Errorf("project %d's host connection %d does not exist", projectID, project.HostConnectionID)
		}
		if _, ok := hostConn.projects[projectID]; !ok {
			return fmt.Errorf("project %d's host connection %d does not list it", projectID, project.HostConnectionID)
		}

		for guestConnectionID := range project.Guests {
			guestConn, ok := s.connections[guestConnectionID]
			if !ok {
				return fmt.Errorf("project %d's guest connection %d does not exist", projectID, guestConnectionID)
			}
			if _, ok := guestConn.projects[projectID]; !ok {
				return fmt.Errorf("project %d's guest connection %d does not list it", projectID, guestConnectionID)
			}
		}

		if len(project.ActiveReplicaIDs) != len(project.Guests) {
			return fmt.Errorf("project %d: %d active replica ids but %d guests", projectID, len(project.ActiveReplicaIDs), len(project.Guests))
		}
		seenReplicaIDs := make(map[ReplicaID]struct{}, len(project.Guests))
		for _, guest := range project.Guests {
			seenReplicaIDs[guest.ReplicaID] = struct{}{}
		}
		for replicaID := range project.ActiveReplicaIDs {
			if _, ok := seenReplicaIDs[replicaID]; !ok {
				return fmt.Errorf("project %d: active replica id %d has no matching guest", projectID, replicaID)
			}
		}
	}

	for channelID, ch := range s.channels {
		for connectionID := range ch.connectionIDs {
			conn, ok := s.connections[connectionID]
			if !ok {
				return fmt.Errorf("channel %d references missing connection %d", channelID, connectionID)
			}
			if _, ok := conn.channels[channelID]; !ok {
				return fmt.Errorf("connection %d is a member of channel %d but doesn't list it", connectionID, channelID)
			}
		}
	}

	for userID, state := range s.connectionsByUser {
		switch state.room.kind {
		case roomJoined:
			count := 0
			for _, room := range s.rooms {
				for _, p := range room.Participants {
					if UserID(p.UserID) == userID {
						count++
					}
				}
			}
			if count != 1 {
				return fmt.Errorf("user %d room state is Joined but participates in %d rooms", userID, count)
			}
		case roomCalling:
			room, ok := s.rooms[state.room.roomID]
			if !ok {
				return fmt.Errorf("user %d is Calling room %d which does not exist", userID, state.room.roomID)
			}
			if !containsUserID(room.PendingUserIDs, userID) {
				return fmt.Errorf("user %d is Calling room %d but is not pending there", userID, state.room.roomID)
			}
		}
	}

	return nil
}
