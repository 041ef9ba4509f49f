package rpcserver

import (
	"github.com/bang-go/collabd/proto"
	"github.com/bang-go/collabd/session"
)

// The notify* and broadcast* helpers turn a store operation's result into
// pushes on the connections it names, via the fan-out pool so a slow
// recipient never blocks the next RPC.

func (s *Server) notifyProjectUnregistered(projectID session.ProjectID, project *session.Project) {
	if project == nil {
		return
	}
	ids := project.GuestConnectionIDs()
	s.sendTo(ids, func() any {
		return pushEnvelope("project_unregistered", struct {
			ProjectID uint64 `json:"project_id"`
		}{ProjectID: uint64(projectID)})
	})
}

func (s *Server) notifyProjectUnshared(projectID session.ProjectID, unshared *session.UnsharedProject) {
	ids := make([]session.ConnectionID, 0, len(unshared.Guests))
	for id := range unshared.Guests {
		ids = append(ids, id)
	}
	s.sendTo(ids, func() any {
		return pushEnvelope("project_unshared", struct {
			ProjectID uint64 `json:"project_id"`
		}{ProjectID: uint64(projectID)})
	})
}

func (s *Server) notifyProjectLeft(projectID session.ProjectID) {
	var recipients []session.ConnectionID
	s.withStore(func(store *session.Store) {
		if project, err := store.Project(projectID); err == nil {
			recipients = project.ConnectionIDs()
		}
	})
	s.broadcastProjectUpdate(recipients, projectID)
}

func (s *Server) notifyProjectLeftBy(left session.LeftProject, leavingUserID session.UserID) {
	if left.CancelRequest != nil {
		s.sendTo([]session.ConnectionID{left.HostConnectionID}, func() any {
			return pushEnvelope("join_project_request_cancelled", struct {
				RequesterUserID int32 `json:"requester_user_id"`
			}{RequesterUserID: int32(*left.CancelRequest)})
		})
	}
	if !left.RemoveCollaborator {
		return
	}
	s.sendTo(left.ConnectionIDs, func() any {
		return pushEnvelope("collaborator_left", struct {
			UserID uint64 `json:"user_id"`
		}{UserID: uint64(leavingUserID)})
	})
}

func (s *Server) notifyJoinRequested(projectID session.ProjectID, requesterUserID session.UserID) {
	var hostConnID session.ConnectionID
	s.withStore(func(store *session.Store) {
		project, err := store.Project(projectID)
		if err == nil {
			hostConnID = project.HostConnectionID
		}
	})
	s.sendTo([]session.ConnectionID{hostConnID}, func() any {
		return pushEnvelope("join_project_requested", struct {
			ProjectID       uint64 `json:"project_id"`
			RequesterUserID int32  `json:"requester_user_id"`
		}{ProjectID: uint64(projectID), RequesterUserID: int32(requesterUserID)})
	})
}

func (s *Server) notifyJoinAccepted(projectID session.ProjectID, accepted []session.AcceptedJoinRequest, projectConnIDs []session.ConnectionID) {
	if len(accepted) == 0 {
		return
	}
	ids := make([]session.ConnectionID, 0, len(accepted))
	for _, a := range accepted {
		ids = append(ids, a.Receipt.SenderID)
	}
	s.sendTo(ids, func() any {
		return pushEnvelope("join_project_accepted", struct {
			ProjectID uint64 `json:"project_id"`
		}{ProjectID: uint64(projectID)})
	})
	s.broadcastProjectUpdate(projectConnIDs, projectID)
}

func (s *Server) notifyJoinDenied(receipts []session.Receipt) {
	if len(receipts) == 0 {
		return
	}
	ids := make([]session.ConnectionID, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.SenderID)
	}
	s.sendTo(ids, func() any {
		return pushEnvelope("join_project_denied", struct{}{})
	})
}

func (s *Server) broadcastProjectUpdate(recipients []session.ConnectionID, projectID session.ProjectID) {
	s.sendTo(recipients, func() any {
		return pushEnvelope("project_updated", struct {
			ProjectID uint64 `json:"project_id"`
		}{ProjectID: uint64(projectID)})
	})
}

func (s *Server) broadcastRoomUpdate(recipients []session.ConnectionID, room *proto.Room) {
	if room == nil {
		return
	}
	s.sendTo(recipients, func() any {
		return pushEnvelope("room_updated", room)
	})
}
