package session

import "testing"

func TestAddRemoveConnectionRoundTrip(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)

	if !s.IsUserOnline(10) {
		t.Fatalf("user 10 should be online after add_connection")
	}

	removed, err := s.RemoveConnection(1)
	if err != nil {
		t.Fatalf("remove_connection: %v", err)
	}
	if removed.UserID != 10 {
		t.Fatalf("removed.UserID = %d, want 10", removed.UserID)
	}
	if len(removed.HostedProjects) != 0 || len(removed.GuestProjectIDs) != 0 {
		t.Fatalf("expected no projects to unwind, got %+v", removed)
	}

	if s.IsUserOnline(10) {
		t.Fatalf("user 10 should be gone after its last connection is removed")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestRemoveConnectionUnknown(t *testing.T) {
	s := New()
	if _, err := s.RemoveConnection(99); err != ErrUnknownConnection {
		t.Fatalf("err = %v, want ErrUnknownConnection", err)
	}
}

func TestMultipleConnectionsSameUser(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 10, false)

	ids := s.ConnectionIDsForUser(10)
	if len(ids) != 2 {
		t.Fatalf("expected 2 connections for user 10, got %d", len(ids))
	}

	if _, err := s.RemoveConnection(1); err != nil {
		t.Fatalf("remove_connection(1): %v", err)
	}
	if !s.IsUserOnline(10) {
		t.Fatalf("user 10 should still be online: it has connection 2")
	}
	if _, err := s.RemoveConnection(2); err != nil {
		t.Fatalf("remove_connection(2): %v", err)
	}
	if s.IsUserOnline(10) {
		t.Fatalf("user 10 should be offline: all connections removed")
	}
}

func TestJoinLeaveChannelIdempotent(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)

	s.JoinChannel(1, 5)
	s.JoinChannel(1, 5) // idempotent
	members, err := s.ChannelConnectionIDs(5)
	if err != nil {
		t.Fatalf("channel_connection_ids: %v", err)
	}
	if len(members) != 1 || members[0] != 1 {
		t.Fatalf("members = %v, want [1]", members)
	}

	s.LeaveChannel(1, 5)
	if _, err := s.ChannelConnectionIDs(5); err != ErrUnknownChannel {
		t.Fatalf("channel should be gone once empty, err = %v", err)
	}

	// Leaving again is a no-op, not an error/panic.
	s.LeaveChannel(1, 5)
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestJoinChannelUnknownConnectionIsNoop(t *testing.T) {
	s := New()
	s.JoinChannel(42, 5)
	if _, err := s.ChannelConnectionIDs(5); err != ErrUnknownChannel {
		t.Fatalf("join_channel from unknown connection must not create the channel, err = %v", err)
	}
}

func TestRemoveConnectionUnwindsChannels(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	s.JoinChannel(1, 5)
	s.JoinChannel(2, 5)

	if _, err := s.RemoveConnection(1); err != nil {
		t.Fatalf("remove_connection: %v", err)
	}
	members, err := s.ChannelConnectionIDs(5)
	if err != nil {
		t.Fatalf("channel_connection_ids: %v", err)
	}
	if len(members) != 1 || members[0] != 2 {
		t.Fatalf("members = %v, want [2]", members)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}
