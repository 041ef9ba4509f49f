package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bang-go/collabd/proto"
	"github.com/bang-go/collabd/session"
	"github.com/bang-go/collabd/transport/wsx"
)

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

// dispatch parses one client frame and routes it to the matching store
// operation, replying on the same connection with a Response carrying the
// same request id.
func (s *Server) dispatch(ctx context.Context, c wsx.Connect, connID session.ConnectionID, raw []byte) {
	_, span := s.tr.Start(ctx, "rpcserver.dispatch")
	defer span.End()

	var env proto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn(ctx, "malformed_envelope", "error", err)
		return
	}

	handler, ok := methods[env.Method]
	if !ok {
		s.reply(ctx, c, env.ID, nil, errors.New("unknown method: "+env.Method))
		return
	}

	payload, err := handler(s, connID, env.Payload)
	s.reply(ctx, c, env.ID, payload, err)
}

func (s *Server) reply(ctx context.Context, c wsx.Connect, id string, payload any, err error) {
	resp := proto.Response{ID: id, OK: err == nil}
	if err != nil {
		resp.Error = err.Error()
	} else if payload != nil {
		data, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			resp.OK = false
			resp.Error = marshalErr.Error()
		} else {
			resp.Payload = data
		}
	}
	_ = c.SendJSON(ctx, resp)
}

// methodFunc handles one RPC method body (already unwrapped from its
// Envelope) and returns the payload to marshal back, or an error.
type methodFunc func(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error)

var methods = map[string]methodFunc{
	"register_project":             handleRegisterProject,
	"unregister_project":           handleUnregisterProject,
	"update_project":               handleUpdateProject,
	"update_worktree":              handleUpdateWorktree,
	"update_diagnostic_summary":    handleUpdateDiagnosticSummary,
	"start_language_server":        handleStartLanguageServer,
	"register_project_activity":    handleRegisterProjectActivity,
	"request_join_project":         handleRequestJoinProject,
	"accept_join_project_request":  handleAcceptJoinProjectRequest,
	"deny_join_project_request":    handleDenyJoinProjectRequest,
	"leave_project":                handleLeaveProject,
	"join_channel":                 handleJoinChannel,
	"leave_channel":                handleLeaveChannel,
	"create_room":                  handleCreateRoom,
	"join_room":                    handleJoinRoom,
	"call":                         handleCall,
	"call_failed":                  handleCallFailed,
	"call_declined":                handleCallDeclined,
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	err := json.Unmarshal(payload, &v)
	return v, err
}

type registerProjectRequest struct {
	ProjectID session.ProjectID `json:"project_id"`
	Online    bool              `json:"online"`
}

func handleRegisterProject(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[registerProjectRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	s.withStore(func(store *session.Store) {
		opErr = store.RegisterProject(connID, req.ProjectID, req.Online)
	})
	return nil, opErr
}

type projectIDRequest struct {
	ProjectID session.ProjectID `json:"project_id"`
}

func handleUnregisterProject(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[projectIDRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var project *session.Project
	s.withStore(func(store *session.Store) {
		project, opErr = store.UnregisterProject(req.ProjectID, connID)
	})
	if opErr == nil {
		s.notifyProjectUnregistered(req.ProjectID, project)
	}
	return nil, opErr
}

type updateProjectRequest struct {
	ProjectID session.ProjectID      `json:"project_id"`
	Worktrees []proto.WorktreeMetadata `json:"worktrees"`
	Online    bool                   `json:"online"`
}

func handleUpdateProject(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[updateProjectRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var unshared *session.UnsharedProject
	s.withStore(func(store *session.Store) {
		unshared, opErr = store.UpdateProject(req.ProjectID, req.Worktrees, req.Online, connID)
	})
	if opErr == nil && unshared != nil {
		s.notifyProjectUnshared(req.ProjectID, unshared)
	}
	return nil, opErr
}

type updateWorktreeRequest struct {
	ProjectID    session.ProjectID `json:"project_id"`
	WorktreeID   session.WorktreeID `json:"worktree_id"`
	RootName     string            `json:"root_name"`
	RemovedIDs   []uint64          `json:"removed_entry_ids"`
	UpdatedEntries []proto.Entry   `json:"updated_entries"`
	ScanID       uint64            `json:"scan_id"`
	IsLastUpdate bool              `json:"is_last_update"`
}

func handleUpdateWorktree(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[updateWorktreeRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var recipients []session.ConnectionID
	s.withStore(func(store *session.Store) {
		recipients, _, opErr = store.UpdateWorktree(connID, req.ProjectID, req.WorktreeID, req.RootName, req.RemovedIDs, req.UpdatedEntries, req.ScanID, req.IsLastUpdate)
	})
	if opErr == nil {
		s.broadcastProjectUpdate(recipients, req.ProjectID)
	}
	return nil, opErr
}

type updateDiagnosticSummaryRequest struct {
	ProjectID  session.ProjectID        `json:"project_id"`
	WorktreeID session.WorktreeID       `json:"worktree_id"`
	Summary    proto.DiagnosticSummary `json:"summary"`
}

func handleUpdateDiagnosticSummary(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[updateDiagnosticSummaryRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var recipients []session.ConnectionID
	s.withStore(func(store *session.Store) {
		recipients, opErr = store.UpdateDiagnosticSummary(req.ProjectID, req.WorktreeID, connID, req.Summary)
	})
	if opErr == nil {
		s.broadcastProjectUpdate(recipients, req.ProjectID)
	}
	return nil, opErr
}

type startLanguageServerRequest struct {
	ProjectID session.ProjectID      `json:"project_id"`
	Server    proto.LanguageServer `json:"server"`
}

func handleStartLanguageServer(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[startLanguageServerRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var recipients []session.ConnectionID
	s.withStore(func(store *session.Store) {
		recipients, opErr = store.StartLanguageServer(req.ProjectID, connID, req.Server)
	})
	if opErr == nil {
		s.broadcastProjectUpdate(recipients, req.ProjectID)
	}
	return nil, opErr
}

func handleRegisterProjectActivity(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[projectIDRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	s.withStore(func(store *session.Store) {
		opErr = store.RegisterProjectActivity(req.ProjectID, connID, time.Now())
	})
	return nil, opErr
}

type requestJoinProjectRequest struct {
	ProjectID session.ProjectID `json:"project_id"`
	RequestID uint64            `json:"request_id"`
}

func handleRequestJoinProject(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[requestJoinProjectRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var requesterUserID session.UserID
	s.withStore(func(store *session.Store) {
		requesterUserID, opErr = store.UserIDForConnection(connID)
		if opErr != nil {
			return
		}
		opErr = store.RequestJoinProject(requesterUserID, req.ProjectID, session.Receipt{SenderID: connID, RequestID: req.RequestID})
	})
	if opErr == nil {
		s.notifyJoinRequested(req.ProjectID, requesterUserID)
	}
	return nil, opErr
}

type respondJoinProjectRequest struct {
	ProjectID       session.ProjectID `json:"project_id"`
	RequesterUserID session.UserID    `json:"requester_user_id"`
}

func handleAcceptJoinProjectRequest(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[respondJoinProjectRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var accepted []session.AcceptedJoinRequest
	var projectConnIDs []session.ConnectionID
	s.withStore(func(store *session.Store) {
		var project *session.Project
		accepted, project, opErr = store.AcceptJoinProjectRequest(connID, req.RequesterUserID, req.ProjectID, time.Now())
		// The returned project is store-owned; extract the fan-out list
		// here, before leaving the critical section.
		if project != nil {
			projectConnIDs = project.ConnectionIDs()
		}
	})
	if opErr == nil {
		s.notifyJoinAccepted(req.ProjectID, accepted, projectConnIDs)
	}
	return nil, opErr
}

func handleDenyJoinProjectRequest(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[respondJoinProjectRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var receipts []session.Receipt
	s.withStore(func(store *session.Store) {
		receipts, opErr = store.DenyJoinProjectRequest(connID, req.RequesterUserID, req.ProjectID, time.Now())
	})
	if opErr == nil {
		s.notifyJoinDenied(receipts)
	}
	return nil, opErr
}

func handleLeaveProject(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[projectIDRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var left session.LeftProject
	var leavingUserID session.UserID
	s.withStore(func(store *session.Store) {
		leavingUserID, _ = store.UserIDForConnection(connID)
		left, opErr = store.LeaveProject(connID, req.ProjectID)
	})
	if opErr == nil {
		s.notifyProjectLeftBy(left, leavingUserID)
	}
	return nil, opErr
}

type channelRequest struct {
	ChannelID session.ChannelID `json:"channel_id"`
}

func handleJoinChannel(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[channelRequest](payload)
	if err != nil {
		return nil, err
	}
	s.withStore(func(store *session.Store) {
		store.JoinChannel(connID, req.ChannelID)
	})
	return nil, nil
}

func handleLeaveChannel(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[channelRequest](payload)
	if err != nil {
		return nil, err
	}
	s.withStore(func(store *session.Store) {
		store.LeaveChannel(connID, req.ChannelID)
	})
	return nil, nil
}

type createRoomResponse struct {
	RoomID session.RoomID `json:"room_id"`
}

func handleCreateRoom(s *Server, connID session.ConnectionID, _ json.RawMessage) (any, error) {
	var opErr error
	var roomID session.RoomID
	s.withStore(func(store *session.Store) {
		roomID, opErr = store.CreateRoom(connID)
	})
	if opErr != nil {
		return nil, opErr
	}
	return createRoomResponse{RoomID: roomID}, nil
}

type roomIDRequest struct {
	RoomID session.RoomID `json:"room_id"`
}

func handleJoinRoom(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[roomIDRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var room *proto.Room
	var recipients []session.ConnectionID
	s.withStore(func(store *session.Store) {
		r, recips, err := store.JoinRoom(req.RoomID, connID)
		room, recipients, opErr = r.Clone(), recips, err
	})
	if opErr == nil {
		s.broadcastRoomUpdate(recipients, room)
	}
	return nil, opErr
}

type callRequest struct {
	RoomID session.RoomID `json:"room_id"`
	UserID session.UserID `json:"user_id"`
}

func handleCall(s *Server, connID session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[callRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var recipients []session.ConnectionID
	var room *proto.Room
	s.withStore(func(store *session.Store) {
		_, recips, r, err := store.Call(req.RoomID, connID, req.UserID)
		recipients, room, opErr = recips, r.Clone(), err
	})
	if opErr == nil {
		// Both the invitee's connections (so every device rings) and the
		// current participants (so they see the pending invite).
		s.broadcastRoomUpdate(unionConnectionIDs(roomParticipantConnectionIDs(room), recipients), room)
	}
	return nil, opErr
}

// unionConnectionIDs merges two recipient lists, dropping duplicates.
func unionConnectionIDs(a, b []session.ConnectionID) []session.ConnectionID {
	seen := make(map[session.ConnectionID]struct{}, len(a)+len(b))
	merged := make([]session.ConnectionID, 0, len(a)+len(b))
	for _, ids := range [][]session.ConnectionID{a, b} {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}

func handleCallFailed(s *Server, _ session.ConnectionID, payload json.RawMessage) (any, error) {
	req, err := decode[callRequest](payload)
	if err != nil {
		return nil, err
	}
	var opErr error
	var room *proto.Room
	s.withStore(func(store *session.Store) {
		r, err := store.CallFailed(req.RoomID, req.UserID)
		room, opErr = r.Clone(), err
	})
	if opErr == nil {
		s.broadcastRoomUpdate(roomParticipantConnectionIDs(room), room)
	}
	return nil, opErr
}

// roomParticipantConnectionIDs reads the participants' connection ids
// straight off a Room snapshot, for handlers (call, call_failed) whose store
// method doesn't hand back those ids itself.
func roomParticipantConnectionIDs(room *proto.Room) []session.ConnectionID {
	if room == nil {
		return nil
	}
	ids := make([]session.ConnectionID, 0, len(room.Participants))
	for _, p := range room.Participants {
		ids = append(ids, session.ConnectionID(p.PeerID))
	}
	return ids
}

func handleCallDeclined(s *Server, connID session.ConnectionID, _ json.RawMessage) (any, error) {
	var opErr error
	var recipients []session.ConnectionID
	var room *proto.Room
	s.withStore(func(store *session.Store) {
		r, recips, err := store.CallDeclined(connID)
		room, recipients, opErr = r.Clone(), recips, err
	})
	if opErr == nil {
		s.broadcastRoomUpdate(recipients, room)
	}
	return nil, opErr
}
