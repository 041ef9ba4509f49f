package session

import "github.com/bang-go/collabd/proto"

// CreateRoom allocates a new room with creatorConnectionID as its sole
// participant and puts the creator's user into the Joined room state.
// Fails ErrUnknownConnection if the connection is unknown, ErrAlreadyInRoom
// if the creator's user is already joined or being called.
func (s *Store) CreateRoom(creatorConnectionID ConnectionID) (RoomID, error) {
	conn, ok := s.connections[creatorConnectionID]
	if !ok {
		return 0, ErrUnknownConnection
	}
	userState, ok := s.connectionsByUser[conn.userID]
	if !ok {
		return 0, ErrUnknownConnection
	}
	if userState.room.kind != roomNone {
		return 0, ErrAlreadyInRoom
	}

	room := &proto.Room{
		Participants: []proto.Participant{
			{
				UserID:   int32(conn.userID),
				PeerID:   uint32(creatorConnectionID),
				Location: proto.ParticipantLocation{External: true},
			},
		},
	}

	roomID := s.nextRoomID
	s.nextRoomID++
	s.rooms[roomID] = room
	userState.room = roomParticipation{kind: roomJoined, roomID: roomID}

	return roomID, nil
}

// JoinRoom moves connectionID's user from pending invitee to participant of
// roomID, returning the updated room and every connection id of the joining
// user, the joining connection included (used by the caller to multicast
// presence updates).
func (s *Store) JoinRoom(roomID RoomID, connectionID ConnectionID) (*proto.Room, []ConnectionID, error) {
	conn, ok := s.connections[connectionID]
	if !ok {
		return nil, nil, ErrUnknownConnection
	}
	userID := conn.userID
	recipientConnectionIDs := s.ConnectionIDsForUser(userID)

	userState, ok := s.connectionsByUser[userID]
	if !ok {
		return nil, nil, ErrUnknownConnection
	}
	if !(userState.room.kind == roomNone || (userState.room.kind == roomCalling && userState.room.roomID == roomID)) {
		return nil, nil, ErrAlreadyInRoom
	}

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, ErrUnknownRoom
	}
	if !removeUserID(&room.PendingUserIDs, userID) {
		return nil, nil, ErrUnknownRoom
	}

	room.Participants = append(room.Participants, proto.Participant{
		UserID:   int32(userID),
		PeerID:   uint32(connectionID),
		Location: proto.ParticipantLocation{External: true},
	})
	userState.room = roomParticipation{kind: roomJoined, roomID: roomID}

	return room, recipientConnectionIDs, nil
}

// Call invites toUserID to join roomID on behalf of fromConnectionID, which
// must already be a participant of that room. Fails ErrNotInRoom if the
// caller isn't a participant, ErrDuplicateInvite if toUserID is already
// pending in roomID, ErrRecipientBusy if the invitee is otherwise already in
// or invited to a room.
func (s *Store) Call(roomID RoomID, fromConnectionID ConnectionID, toUserID UserID) (UserID, []ConnectionID, *proto.Room, error) {
	fromUserID, err := s.UserIDForConnection(fromConnectionID)
	if err != nil {
		return 0, nil, nil, err
	}

	toConnectionIDs := s.ConnectionIDsForUser(toUserID)
	toUserState, ok := s.connectionsByUser[toUserID]
	if !ok {
		return 0, nil, nil, ErrUnknownConnection
	}

	room, ok := s.rooms[roomID]
	if !ok {
		return 0, nil, nil, ErrUnknownRoom
	}
	if !roomHasParticipant(room, fromConnectionID) {
		return 0, nil, nil, ErrNotInRoom
	}
	if containsUserID(room.PendingUserIDs, toUserID) {
		return 0, nil, nil, ErrDuplicateInvite
	}
	if toUserState.room.kind != roomNone {
		return 0, nil, nil, ErrRecipientBusy
	}

	room.PendingUserIDs = append(room.PendingUserIDs, int32(toUserID))
	toUserState.room = roomParticipation{kind: roomCalling, roomID: roomID}

	return fromUserID, toConnectionIDs, room, nil
}

// CallFailed clears an invitee's Calling state when the call could not be
// delivered (e.g. the connection attempt errored out before any response).
func (s *Store) CallFailed(roomID RoomID, toUserID UserID) (*proto.Room, error) {
	toUserState, ok := s.connectionsByUser[toUserID]
	if !ok || toUserState.room.kind != roomCalling || toUserState.room.roomID != roomID {
		return nil, ErrNotBeingCalled
	}
	toUserState.room = roomParticipation{}

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrUnknownRoom
	}
	removeUserID(&room.PendingUserIDs, toUserID)
	return room, nil
}

// CallDeclined clears recipientConnectionID's user out of Calling state and
// returns the room plus that user's connection ids (for multicast).
func (s *Store) CallDeclined(recipientConnectionID ConnectionID) (*proto.Room, []ConnectionID, error) {
	recipientUserID, err := s.UserIDForConnection(recipientConnectionID)
	if err != nil {
		return nil, nil, err
	}
	userState, ok := s.connectionsByUser[recipientUserID]
	if !ok || userState.room.kind != roomCalling {
		return nil, nil, ErrNotBeingCalled
	}
	roomID := userState.room.roomID
	userState.room = roomParticipation{}

	recipientConnectionIDs := s.ConnectionIDsForUser(recipientUserID)
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, ErrUnknownRoom
	}
	removeUserID(&room.PendingUserIDs, recipientUserID)

	return room, recipientConnectionIDs, nil
}

func roomHasParticipant(room *proto.Room, connectionID ConnectionID) bool {
	for _, p := range room.Participants {
		if p.PeerID == uint32(connectionID) {
			return true
		}
	}
	return false
}

func containsUserID(ids []int32, userID UserID) bool {
	for _, id := range ids {
		if UserID(id) == userID {
			return true
		}
	}
	return false
}

// removeUserID removes the first occurrence of userID from *ids, reporting
// whether it was present.
func removeUserID(ids *[]int32, userID UserID) bool {
	for i, id := range *ids {
		if UserID(id) == userID {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}
