package session

import (
	"testing"
	"time"

	"github.com/bang-go/collabd/proto"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TestTwoUsersOneProject covers a host registering a project and a guest
// joining it.
func TestTwoUsersOneProject(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)

	if err := s.RegisterProject(1, 100, true); err != nil {
		t.Fatalf("register_project: %v", err)
	}

	if err := s.RequestJoinProject(20, 100, Receipt{SenderID: 2}); err != nil {
		t.Fatalf("request_join_project: %v", err)
	}

	accepted, project, err := s.AcceptJoinProjectRequest(1, 20, 100, epoch)
	if err != nil {
		t.Fatalf("accept_join_project_request: %v", err)
	}
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted receipt, got %d", len(accepted))
	}
	if accepted[0].ReplicaID != 1 {
		t.Fatalf("replica id = %d, want 1", accepted[0].ReplicaID)
	}
	guest, ok := project.Guests[2]
	if !ok {
		t.Fatalf("connection 2 should be a guest")
	}
	if guest.UserID != 20 || guest.ReplicaID != 1 || guest.Admin {
		t.Fatalf("guest = %+v, unexpected", guest)
	}
	if len(project.ActiveReplicaIDs) != 1 {
		t.Fatalf("active_replica_ids = %v, want {1}", project.ActiveReplicaIDs)
	}

	ids, err := s.ProjectConnectionIDs(100, 1)
	if err != nil {
		t.Fatalf("project_connection_ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("project_connection_ids = %v, want 2 entries", ids)
	}

	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

// TestHostDisconnects continues from TestTwoUsersOneProject: the host's
// connection drops and the guest is evicted along with it.
func TestHostDisconnects(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	mustOK(t, s.RegisterProject(1, 100, true))
	mustOK(t, s.RequestJoinProject(20, 100, Receipt{SenderID: 2}))
	if _, _, err := s.AcceptJoinProjectRequest(1, 20, 100, epoch); err != nil {
		t.Fatalf("accept: %v", err)
	}

	removed, err := s.RemoveConnection(1)
	if err != nil {
		t.Fatalf("remove_connection: %v", err)
	}
	if removed.UserID != 10 {
		t.Fatalf("removed.UserID = %d, want 10", removed.UserID)
	}
	if _, ok := removed.HostedProjects[100]; !ok {
		t.Fatalf("expected project 100 in hosted_projects")
	}
	if len(removed.GuestProjectIDs) != 0 {
		t.Fatalf("guest_project_ids should be empty, got %v", removed.GuestProjectIDs)
	}

	if _, err := s.Project(100); err != ErrUnknownProject {
		t.Fatalf("project 100 should be gone, err = %v", err)
	}

	guestConn := s.connections[2]
	if _, ok := guestConn.projects[100]; ok {
		t.Fatalf("connection 2 should no longer list project 100")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

// TestProjectGoesOffline checks that when the host updates a shared project
// to offline, its guests are returned as displaced and unlinked from it.
func TestProjectGoesOffline(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	mustOK(t, s.RegisterProject(1, 100, true))
	mustOK(t, s.RequestJoinProject(20, 100, Receipt{SenderID: 2}))
	if _, _, err := s.AcceptJoinProjectRequest(1, 20, 100, epoch); err != nil {
		t.Fatalf("accept: %v", err)
	}

	unshared, err := s.UpdateProject(100, nil, false, 1)
	if err != nil {
		t.Fatalf("update_project: %v", err)
	}
	if unshared == nil {
		t.Fatalf("expected UnsharedProject, got nil")
	}
	if len(unshared.Guests) != 1 {
		t.Fatalf("unshared.Guests = %v, want 1 entry", unshared.Guests)
	}

	project, err := s.Project(100)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(project.ActiveReplicaIDs) != 0 {
		t.Fatalf("active_replica_ids should be empty, got %v", project.ActiveReplicaIDs)
	}

	guestConn := s.connections[2]
	if _, ok := guestConn.projects[100]; ok {
		t.Fatalf("connection 2 should no longer list project 100 once unshared")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

// TestWorktreeEntryUniquenessViolation: the store does not silently dedup
// entries that share a path; CheckInvariants is the contract that catches it.
func TestWorktreeEntryUniquenessViolation(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	mustOK(t, s.RegisterProject(1, 100, true))

	_, _, err := s.UpdateWorktree(1, 100, 1, "root", nil, []proto.Entry{
		{ID: 5, Path: "a"},
		{ID: 6, Path: "a"},
	}, 1, true)
	if err != nil {
		t.Fatalf("update_worktree: %v", err)
	}

	if err := s.CheckInvariants(); err == nil {
		t.Fatalf("expected check_invariants to reject duplicate paths within a worktree")
	}
}

func TestReplicaIDReuseAfterGuestLeaves(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	s.AddConnection(3, 30, false)
	mustOK(t, s.RegisterProject(1, 100, true))

	mustOK(t, s.RequestJoinProject(20, 100, Receipt{SenderID: 2}))
	mustOK(t, s.RequestJoinProject(30, 100, Receipt{SenderID: 3}))
	if _, _, err := s.AcceptJoinProjectRequest(1, 20, 100, epoch); err != nil {
		t.Fatalf("accept 20: %v", err)
	}
	accepted30, _, err := s.AcceptJoinProjectRequest(1, 30, 100, epoch)
	if err != nil {
		t.Fatalf("accept 30: %v", err)
	}
	if accepted30[0].ReplicaID != 2 {
		t.Fatalf("second guest replica id = %d, want 2", accepted30[0].ReplicaID)
	}

	if _, err := s.LeaveProject(2, 100); err != nil {
		t.Fatalf("leave_project(2): %v", err)
	}

	s.AddConnection(4, 40, false)
	mustOK(t, s.RequestJoinProject(40, 100, Receipt{SenderID: 4}))
	accepted40, _, err := s.AcceptJoinProjectRequest(1, 40, 100, epoch)
	if err != nil {
		t.Fatalf("accept 40: %v", err)
	}
	if accepted40[0].ReplicaID != 1 {
		t.Fatalf("freed replica id 1 should be reused, got %d", accepted40[0].ReplicaID)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestRegisterUnregisterProjectRoundTrip(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	mustOK(t, s.RegisterProject(1, 100, true))

	if _, err := s.UnregisterProject(100, 1); err != nil {
		t.Fatalf("unregister_project: %v", err)
	}
	if _, err := s.Project(100); err != ErrUnknownProject {
		t.Fatalf("project should be gone, err = %v", err)
	}
	if _, ok := s.connections[1].projects[100]; ok {
		t.Fatalf("host connection should no longer list the project")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("check_invariants: %v", err)
	}
}

func TestUnregisterProjectRejectsNonHost(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	mustOK(t, s.RegisterProject(1, 100, true))

	if _, err := s.UnregisterProject(100, 2); err != ErrUnknownProject {
		t.Fatalf("err = %v, want ErrUnknownProject (info-hiding)", err)
	}
}

func TestRequestJoinThenDenyCancelsBookkeeping(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	mustOK(t, s.RegisterProject(1, 100, true))
	mustOK(t, s.RequestJoinProject(20, 100, Receipt{SenderID: 2}))

	receipts, err := s.DenyJoinProjectRequest(1, 20, 100, epoch)
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	if len(receipts) != 1 || receipts[0].SenderID != 2 {
		t.Fatalf("receipts = %v, want [{SenderID:2}]", receipts)
	}
	if _, ok := s.connections[2].requestedProjects[100]; ok {
		t.Fatalf("requested_projects should be cleared after deny")
	}
	project, _ := s.Project(100)
	if len(project.JoinRequests) != 0 {
		t.Fatalf("join_requests should be empty after deny, got %v", project.JoinRequests)
	}
}

// TestTwoConnectionsSameUserRequestJoin covers a boundary case: a single
// deny answers both connections of the requesting user, but a leave by one
// only cancels its own receipt unless it is the last.
func TestTwoConnectionsSameUserRequestJoin(t *testing.T) {
	s := New()
	s.AddConnection(1, 10, false)
	s.AddConnection(2, 20, false)
	s.AddConnection(3, 20, false) // user 20's second device
	mustOK(t, s.RegisterProject(1, 100, true))
	mustOK(t, s.RequestJoinProject(20, 100, Receipt{SenderID: 2}))
	mustOK(t, s.RequestJoinProject(20, 100, Receipt{SenderID: 3}))

	project, _ := s.Project(100)
	if len(project.JoinRequests[20]) != 2 {
		t.Fatalf("expected 2 pending receipts for user 20, got %d", len(project.JoinRequests[20]))
	}

	left, err := s.LeaveProject(2, 100)
	if err != nil {
		t.Fatalf("leave_project(2): %v", err)
	}
	if left.CancelRequest != nil {
		t.Fatalf("cancel_request should be nil: connection 3 still has a pending request")
	}
	if len(project.JoinRequests[20]) != 1 || project.JoinRequests[20][0].SenderID != 3 {
		t.Fatalf("remaining requests = %v, want only connection 3's", project.JoinRequests[20])
	}

	left, err = s.LeaveProject(3, 100)
	if err != nil {
		t.Fatalf("leave_project(3): %v", err)
	}
	if left.CancelRequest == nil || *left.CancelRequest != 20 {
		t.Fatalf("cancel_request should be Some(20) once the last receipt is gone, got %v", left.CancelRequest)
	}
	if _, ok := project.JoinRequests[20]; ok {
		t.Fatalf("join_requests[20] should be removed entirely")
	}

	receipts, err := s.DenyJoinProjectRequest(1, 20, 100, epoch)
	if err != nil || receipts != nil {
		t.Fatalf("deny on an already-cleared request should be a no-op, got receipts=%v err=%v", receipts, err)
	}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
