package session

import "testing"

func TestCreateRoomJoinsCreator(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)

	roomID, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room: %v", err)
	}

	room, ok := s.rooms[roomID]
	if !ok {
		t.Fatalf("room %d not found", roomID)
	}
	if len(room.Participants) != 1 || room.Participants[0].UserID != 10 {
		t.Fatalf("room.Participants = %+v, want a single entry for user 10", room.Participants)
	}

	state := s.connectionsByUser[10].room
	if state.kind != roomJoined || state.roomID != roomID {
		t.Fatalf("user 10's room state = %+v, want Joined(%d)", state, roomID)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestCreateRoomRejectsWhenAlreadyInARoom(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	if _, err := s.CreateRoom(1); err != nil {
		t.Fatalf("create_room: %v", err)
	}
	if _, err := s.CreateRoom(1); err != ErrAlreadyInRoom {
		t.Fatalf("err = %v, want ErrAlreadyInRoom", err)
	}
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	if _, _, err := s.JoinRoom(999, 1); err != ErrUnknownRoom {
		t.Fatalf("err = %v, want ErrUnknownRoom", err)
	}
}

// TestRoomInviteLifecycle covers the call/accept lifecycle: a host
// creates a room, calls a recipient, and the recipient joins.
func TestRoomInviteLifecycle(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)

	roomID, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room: %v", err)
	}

	calledUserID, recipientConnIDs, room, err := s.Call(roomID, 1, 20)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if calledUserID != 10 {
		t.Fatalf("calledUserID (caller) = %d, want 10", calledUserID)
	}
	if len(recipientConnIDs) != 1 || recipientConnIDs[0] != 2 {
		t.Fatalf("recipient connection ids = %v, want [2]", recipientConnIDs)
	}
	if !containsUserID(room.PendingUserIDs, 20) {
		t.Fatalf("room.PendingUserIDs = %v, want to contain 20", room.PendingUserIDs)
	}

	calleeState := s.connectionsByUser[20].room
	if calleeState.kind != roomCalling || calleeState.roomID != roomID {
		t.Fatalf("user 20's room state = %+v, want Calling(%d)", calleeState, roomID)
	}

	room2, joinedConnIDs, err := s.JoinRoom(roomID, 2)
	if err != nil {
		t.Fatalf("join_room(callee): %v", err)
	}
	if len(room2.Participants) != 2 {
		t.Fatalf("room2.Participants = %+v, want 2 entries", room2.Participants)
	}
	if containsUserID(room2.PendingUserIDs, 20) {
		t.Fatalf("user 20 should no longer be pending once joined")
	}
	if len(joinedConnIDs) != 1 || joinedConnIDs[0] != 2 {
		t.Fatalf("joined connection ids = %v, want [2]", joinedConnIDs)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

// TestDuplicateInviteRejected: after call(room, 1, 20), a second
// call(room, 1, 20) fails with ErrDuplicateInvite.
func TestDuplicateInviteRejected(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	roomID, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room: %v", err)
	}

	if _, _, _, err := s.Call(roomID, 1, 20); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, _, _, err := s.Call(roomID, 1, 20); err != ErrDuplicateInvite {
		t.Fatalf("err = %v, want ErrDuplicateInvite", err)
	}
}

func TestCallRejectsBusyRecipient(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	s.AddConnection(3, 30, false)

	roomA, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room(host): %v", err)
	}

	roomB, err := s.CreateRoom(2)
	if err != nil {
		t.Fatalf("create_room(other): %v", err)
	}
	if _, _, _, err := s.Call(roomB, 2, 30); err != nil {
		t.Fatalf("call(roomB, 30): %v", err)
	}

	if _, _, _, err := s.Call(roomA, 1, 30); err != ErrRecipientBusy {
		t.Fatalf("err = %v, want ErrRecipientBusy: user 30 is already being called elsewhere", err)
	}
}

func TestCallRejectsCallerNotInRoom(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	s.AddConnection(3, 30, false)

	roomA, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room: %v", err)
	}
	// Connection 2 (user 20) is not a participant of roomA.
	if _, _, _, err := s.Call(roomA, 2, 30); err != ErrNotInRoom {
		t.Fatalf("err = %v, want ErrNotInRoom", err)
	}
}

func TestCallFailedResetsCalleeState(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	roomID, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room: %v", err)
	}
	if _, _, _, err := s.Call(roomID, 1, 20); err != nil {
		t.Fatalf("call: %v", err)
	}

	room, err := s.CallFailed(roomID, 20)
	if err != nil {
		t.Fatalf("call_failed: %v", err)
	}
	if containsUserID(room.PendingUserIDs, 20) {
		t.Fatalf("user 20 should be removed from pending after call_failed")
	}
	if state := s.connectionsByUser[20].room; state.kind != roomNone {
		t.Fatalf("user 20's room state = %+v, want None", state)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestCallDeclinedResetsCalleeState(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	roomID, err := s.CreateRoom(1)
	if err != nil {
		t.Fatalf("create_room: %v", err)
	}
	if _, _, _, err := s.Call(roomID, 1, 20); err != nil {
		t.Fatalf("call: %v", err)
	}

	room, remainingConnIDs, err := s.CallDeclined(2)
	if err != nil {
		t.Fatalf("call_declined: %v", err)
	}
	if containsUserID(room.PendingUserIDs, 20) {
		t.Fatalf("user 20 should be removed from pending after call_declined")
	}
	if len(remainingConnIDs) != 1 || remainingConnIDs[0] != 2 {
		t.Fatalf("remaining connection ids = %v, want [2]", remainingConnIDs)
	}
	if state := s.connectionsByUser[20].room; state.kind != roomNone {
		t.Fatalf("user 20's room state = %+v, want None", state)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestCallDeclinedRejectsWhenNotBeingCalled(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	if _, _, err := s.CallDeclined(1); err != ErrNotBeingCalled {
		t.Fatalf("err = %v, want ErrNotBeingCalled", err)
	}
}
