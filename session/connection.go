package session

// connectionState is the per-connection row of the store.
type connectionState struct {
	userID            UserID
	admin             bool
	projects          map[ProjectID]struct{}
	requestedProjects map[ProjectID]struct{}
	channels          map[ChannelID]struct{}
}

func newConnectionState(userID UserID, admin bool) *connectionState {
	return &connectionState{
		userID:            userID,
		admin:             admin,
		projects:          make(map[ProjectID]struct{}),
		requestedProjects: make(map[ProjectID]struct{}),
		channels:          make(map[ChannelID]struct{}),
	}
}

// roomParticipationKind is the three-state variant of a user's room
// membership: none, joined, or calling (invited but not yet answered).
type roomParticipationKind int

const (
	roomNone roomParticipationKind = iota
	roomJoined
	roomCalling
)

type roomParticipation struct {
	kind   roomParticipationKind
	roomID RoomID // meaningful when kind != roomNone
}

// userConnectionState is the per-user row of the store: every live
// connection for that user, plus at most one room/call state.
type userConnectionState struct {
	connectionIDs map[ConnectionID]struct{}
	room          roomParticipation
}

func newUserConnectionState() *userConnectionState {
	return &userConnectionState{connectionIDs: make(map[ConnectionID]struct{})}
}

// AddConnection registers a fresh connection for user userID. No error path:
// the connection and (if needed) the user row are created unconditionally.
func (s *Store) AddConnection(connectionID ConnectionID, userID UserID, admin bool) {
	s.connections[connectionID] = newConnectionState(userID, admin)

	u, ok := s.connectionsByUser[userID]
	if !ok {
		u = newUserConnectionState()
		s.connectionsByUser[userID] = u
	}
	u.connectionIDs[connectionID] = struct{}{}
}

// RemovedConnectionState is returned by RemoveConnection: everything the
// caller needs to unwind a dropped connection's side effects (notify
// guests, fail pending requests, update contacts).
type RemovedConnectionState struct {
	UserID          UserID
	HostedProjects  map[ProjectID]*Project
	GuestProjectIDs map[ProjectID]struct{}
	// ContactIDs is left empty by the store; the caller populates it from
	// the contacts database, since the store has no knowledge of contacts.
	ContactIDs map[UserID]struct{}
}

// RemoveConnection atomically unwinds a connection: it leaves every channel
// the connection subscribed to, unregisters any project it hosted, leaves
// any project it guested, drops it from its user's connection set (removing
// the user entirely, and with it any room state, if that was the last
// connection), and finally removes the connection row itself.
//
// After this call returns, no connection, user, channel, or project
// membership entry refers to connectionID. Two kinds of entry are left in
// place: a room participant record for this connection stays in its room,
// and a join-request receipt this connection sent for a project it had not
// joined stays in that project's join requests.
func (s *Store) RemoveConnection(connectionID ConnectionID) (RemovedConnectionState, error) {
	conn, ok := s.connections[connectionID]
	if !ok {
		return RemovedConnectionState{}, ErrUnknownConnection
	}

	userID := conn.userID
	connectionProjects := conn.projects
	connectionChannels := conn.channels
	conn.projects = nil
	conn.channels = nil

	result := RemovedConnectionState{
		UserID:          userID,
		HostedProjects:  make(map[ProjectID]*Project),
		GuestProjectIDs: make(map[ProjectID]struct{}),
		ContactIDs:      make(map[UserID]struct{}),
	}

	for channelID := range connectionChannels {
		s.LeaveChannel(connectionID, channelID)
	}

	for projectID := range connectionProjects {
		if project, err := s.UnregisterProject(projectID, connectionID); err == nil {
			result.HostedProjects[projectID] = project
		} else if _, err := s.LeaveProject(connectionID, projectID); err == nil {
			result.GuestProjectIDs[projectID] = struct{}{}
		}
		// Both failing is benign: the project state was already consistent
		// without this connection (e.g. it was already removed as a guest
		// by an earlier unshare).
	}

	userState := s.connectionsByUser[userID]
	delete(userState.connectionIDs, connectionID)
	if len(userState.connectionIDs) == 0 {
		delete(s.connectionsByUser, userID)
	}

	delete(s.connections, connectionID)

	return result, nil
}

// UserIDForConnection returns the user owning connectionID.
func (s *Store) UserIDForConnection(connectionID ConnectionID) (UserID, error) {
	conn, ok := s.connections[connectionID]
	if !ok {
		return 0, ErrUnknownConnection
	}
	return conn.userID, nil
}

// ConnectionIDsForUser returns every live connection for userID, in no
// particular order. Empty (not an error) if the user has none.
func (s *Store) ConnectionIDsForUser(userID UserID) []ConnectionID {
	state, ok := s.connectionsByUser[userID]
	if !ok {
		return nil
	}
	ids := make([]ConnectionID, 0, len(state.connectionIDs))
	for id := range state.connectionIDs {
		ids = append(ids, id)
	}
	return ids
}

// IsUserOnline reports whether userID has at least one live connection.
func (s *Store) IsUserOnline(userID UserID) bool {
	state, ok := s.connectionsByUser[userID]
	return ok && len(state.connectionIDs) > 0
}
