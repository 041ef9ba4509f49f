package session

import (
	"time"

	"github.com/bang-go/collabd/proto"
)

// Collaborator is one project member's editing identity: the host fixed at
// replica 0, guests drawn from {1, 2, ...} smallest-unused-first.
type Collaborator struct {
	UserID       UserID
	ReplicaID    ReplicaID
	Admin        bool
	LastActivity *time.Time
}

// Worktree is a root directory inside a project.
type Worktree struct {
	RootName            string
	Visible             bool
	Entries             map[uint64]proto.Entry
	DiagnosticSummaries map[string]proto.DiagnosticSummary
	ScanID              uint64
	IsComplete          bool
}

func newWorktree(rootName string, visible bool) *Worktree {
	return &Worktree{
		RootName:            rootName,
		Visible:             visible,
		Entries:             make(map[uint64]proto.Entry),
		DiagnosticSummaries: make(map[string]proto.DiagnosticSummary),
	}
}

// Project is a host's workspace made visible to invited collaborators.
type Project struct {
	Online           bool
	HostConnectionID ConnectionID
	Host             Collaborator
	Guests           map[ConnectionID]Collaborator
	JoinRequests     map[UserID][]Receipt
	ActiveReplicaIDs map[ReplicaID]struct{}
	Worktrees        map[WorktreeID]*Worktree
	LanguageServers  []proto.LanguageServer
}

func newProject(hostConnectionID ConnectionID, host Collaborator, online bool) *Project {
	return &Project{
		Online:           online,
		HostConnectionID: hostConnectionID,
		Host:             host,
		Guests:           make(map[ConnectionID]Collaborator),
		JoinRequests:     make(map[UserID][]Receipt),
		ActiveReplicaIDs: make(map[ReplicaID]struct{}),
		Worktrees:        make(map[WorktreeID]*Worktree),
	}
}

// ConnectionIDs returns the host plus every current guest connection.
func (p *Project) ConnectionIDs() []ConnectionID {
	ids := make([]ConnectionID, 0, len(p.Guests)+1)
	ids = append(ids, p.HostConnectionID)
	for id := range p.Guests {
		ids = append(ids, id)
	}
	return ids
}

// GuestConnectionIDs returns every current guest connection.
func (p *Project) GuestConnectionIDs() []ConnectionID {
	ids := make([]ConnectionID, 0, len(p.Guests))
	for id := range p.Guests {
		ids = append(ids, id)
	}
	return ids
}

func (p *Project) isActiveSince(start time.Time) bool {
	if p.Host.LastActivity != nil && p.Host.LastActivity.After(start) {
		return true
	}
	for _, guest := range p.Guests {
		if guest.LastActivity != nil && guest.LastActivity.After(start) {
			return true
		}
	}
	return false
}

// RegisterProject shares or registers project_id as a new project hosted by
// host_connection_id, replacing any existing project with that id.
func (s *Store) RegisterProject(hostConnectionID ConnectionID, projectID ProjectID, online bool) error {
	conn, ok := s.connections[hostConnectionID]
	if !ok {
		return ErrUnknownConnection
	}
	conn.projects[projectID] = struct{}{}
	s.projects[projectID] = newProject(hostConnectionID, Collaborator{
		UserID: conn.userID,
		Admin:  conn.admin,
	}, online)
	return nil
}

// UnsharedProject is returned by UpdateProject when a project transitions
// from online to offline: the guests and pending requesters who must be
// notified that they have been displaced.
type UnsharedProject struct {
	Guests             map[ConnectionID]Collaborator
	PendingJoinRequests map[UserID][]Receipt
}

// UpdateProject reconciles worktree metadata and the online flag for
// projectID. connectionID must be the host. Returns an UnsharedProject only
// when online transitioned true -> false.
func (s *Store) UpdateProject(projectID ProjectID, worktrees []proto.WorktreeMetadata, online bool, connectionID ConnectionID) (*UnsharedProject, error) {
	project, ok := s.projects[projectID]
	if !ok || project.HostConnectionID != connectionID {
		return nil, ErrUnknownProject
	}

	oldWorktrees := project.Worktrees
	project.Worktrees = make(map[WorktreeID]*Worktree, len(worktrees))
	for _, wt := range worktrees {
		id := WorktreeID(wt.ID)
		if existing, ok := oldWorktrees[id]; ok {
			project.Worktrees[id] = existing
		} else {
			project.Worktrees[id] = newWorktree(wt.RootName, wt.Visible)
		}
	}

	if online == project.Online {
		return nil, nil
	}
	project.Online = online
	if project.Online {
		return nil, nil
	}

	for _, connectionID := range project.GuestConnectionIDs() {
		if conn, ok := s.connections[connectionID]; ok {
			delete(conn.projects, projectID)
		}
	}
	for userID := range project.JoinRequests {
		if state, ok := s.connectionsByUser[userID]; ok {
			for connID := range state.connectionIDs {
				if conn, ok := s.connections[connID]; ok {
					delete(conn.requestedProjects, projectID)
				}
			}
		}
	}

	project.ActiveReplicaIDs = make(map[ReplicaID]struct{})
	project.LanguageServers = nil
	for _, worktree := range project.Worktrees {
		worktree.Entries = make(map[uint64]proto.Entry)
		worktree.DiagnosticSummaries = make(map[string]proto.DiagnosticSummary)
	}

	unshared := &UnsharedProject{
		Guests:              project.Guests,
		PendingJoinRequests: project.JoinRequests,
	}
	project.Guests = make(map[ConnectionID]Collaborator)
	project.JoinRequests = make(map[UserID][]Receipt)

	return unshared, nil
}

// UnregisterProject removes projectID, which connectionID must host,
// scrubbing it from the host, every guest, and every outstanding requester.
func (s *Store) UnregisterProject(projectID ProjectID, connectionID ConnectionID) (*Project, error) {
	project, ok := s.projects[projectID]
	if !ok || project.HostConnectionID != connectionID {
		return nil, ErrUnknownProject
	}
	delete(s.projects, projectID)

	if host, ok := s.connections[connectionID]; ok {
		delete(host.projects, projectID)
	}
	for guestConnectionID := range project.Guests {
		if conn, ok := s.connections[guestConnectionID]; ok {
			delete(conn.projects, projectID)
		}
	}
	for requesterUserID := range project.JoinRequests {
		if state, ok := s.connectionsByUser[requesterUserID]; ok {
			for requesterConnectionID := range state.connectionIDs {
				if conn, ok := s.connections[requesterConnectionID]; ok {
					delete(conn.requestedProjects, projectID)
				}
			}
		}
	}

	return project, nil
}

// UpdateDiagnosticSummary records a diagnostic summary for worktreeID, host
// only, returning the project's connection ids for fan-out.
func (s *Store) UpdateDiagnosticSummary(projectID ProjectID, worktreeID WorktreeID, connectionID ConnectionID, summary proto.DiagnosticSummary) ([]ConnectionID, error) {
	project, ok := s.projects[projectID]
	if !ok || project.HostConnectionID != connectionID {
		return nil, ErrUnknownProject
	}
	worktree, ok := project.Worktrees[worktreeID]
	if !ok {
		return nil, ErrUnknownWorktree
	}
	worktree.DiagnosticSummaries[summary.Path] = summary
	return project.ConnectionIDs(), nil
}

// StartLanguageServer records a language server the host started, returning
// the project's connection ids for fan-out.
func (s *Store) StartLanguageServer(projectID ProjectID, connectionID ConnectionID, ls proto.LanguageServer) ([]ConnectionID, error) {
	project, ok := s.projects[projectID]
	if !ok || project.HostConnectionID != connectionID {
		return nil, ErrUnknownProject
	}
	project.LanguageServers = append(project.LanguageServers, ls)
	return project.ConnectionIDs(), nil
}

// RegisterProjectActivity stamps last_activity=now on connectionID's
// collaborator record (host or guest) for projectID.
func (s *Store) RegisterProjectActivity(projectID ProjectID, connectionID ConnectionID, now time.Time) error {
	project, ok := s.projects[projectID]
	if !ok {
		return ErrUnknownProject
	}
	if connectionID == project.HostConnectionID {
		project.Host.LastActivity = &now
		return nil
	}
	if guest, ok := project.Guests[connectionID]; ok {
		guest.LastActivity = &now
		project.Guests[connectionID] = guest
		return nil
	}
	return ErrUnknownProject
}

// RequestJoinProject records a pending join request for projectID from
// requesterUserID, keyed by the receipt's sender connection.
func (s *Store) RequestJoinProject(requesterUserID UserID, projectID ProjectID, receipt Receipt) error {
	conn, ok := s.connections[receipt.SenderID]
	if !ok {
		return ErrUnknownConnection
	}
	project, ok := s.projects[projectID]
	if !ok || !project.Online {
		return ErrUnknownProject
	}
	conn.requestedProjects[projectID] = struct{}{}
	project.JoinRequests[requesterUserID] = append(project.JoinRequests[requesterUserID], receipt)
	return nil
}

// DenyJoinProjectRequest rejects every pending request from requesterUserID
// on projectID. Returns nil, nil if there was nothing to deny (project
// missing, responder not host, or no pending request) — absence here is
// not an error, it just means there is nobody to answer.
func (s *Store) DenyJoinProjectRequest(responderConnectionID ConnectionID, requesterUserID UserID, projectID ProjectID, now time.Time) ([]Receipt, error) {
	project, ok := s.projects[projectID]
	if !ok || responderConnectionID != project.HostConnectionID {
		return nil, nil
	}
	receipts, ok := project.JoinRequests[requesterUserID]
	if !ok {
		return nil, nil
	}
	delete(project.JoinRequests, requesterUserID)

	for _, receipt := range receipts {
		if conn, ok := s.connections[receipt.SenderID]; ok {
			delete(conn.requestedProjects, projectID)
		}
	}
	project.Host.LastActivity = &now

	return receipts, nil
}

// AcceptedJoinRequest pairs a pending receipt with the replica id assigned
// to the guest connection it promoted.
type AcceptedJoinRequest struct {
	Receipt   Receipt
	ReplicaID ReplicaID
}

// AcceptJoinProjectRequest promotes every pending requester connection from
// requesterUserID into a guest of projectID, assigning each the smallest
// unused replica id. Returns nil, nil, nil under the same conditions as
// DenyJoinProjectRequest.
func (s *Store) AcceptJoinProjectRequest(responderConnectionID ConnectionID, requesterUserID UserID, projectID ProjectID, now time.Time) ([]AcceptedJoinRequest, *Project, error) {
	project, ok := s.projects[projectID]
	if !ok || responderConnectionID != project.HostConnectionID {
		return nil, nil, nil
	}
	receipts, ok := project.JoinRequests[requesterUserID]
	if !ok {
		return nil, nil, nil
	}
	delete(project.JoinRequests, requesterUserID)

	accepted := make([]AcceptedJoinRequest, 0, len(receipts))
	for _, receipt := range receipts {
		requesterConnection, ok := s.connections[receipt.SenderID]
		if !ok {
			continue
		}
		delete(requesterConnection.requestedProjects, projectID)
		requesterConnection.projects[projectID] = struct{}{}

		replicaID := smallestUnusedReplicaID(project.ActiveReplicaIDs)
		project.ActiveReplicaIDs[replicaID] = struct{}{}

		activity := now
		project.Guests[receipt.SenderID] = Collaborator{
			ReplicaID:    replicaID,
			UserID:       requesterUserID,
			LastActivity: &activity,
			Admin:        requesterConnection.admin,
		}
		accepted = append(accepted, AcceptedJoinRequest{Receipt: receipt, ReplicaID: replicaID})
	}

	project.Host.LastActivity = &now
	return accepted, project, nil
}

// smallestUnusedReplicaID is the smallest positive integer absent from used.
func smallestUnusedReplicaID(used map[ReplicaID]struct{}) ReplicaID {
	var id ReplicaID = 1
	for {
		if _, taken := used[id]; !taken {
			return id
		}
		id++
	}
}

// LeftProject is returned by LeaveProject: everything the caller needs to
// notify remaining collaborators and clean up pending requests.
type LeftProject struct {
	HostConnectionID ConnectionID
	HostUserID       UserID
	ConnectionIDs    []ConnectionID
	CancelRequest    *UserID
	Unshare          bool
	RemoveCollaborator bool
}

// LeaveProject removes connectionID as a guest of projectID (if it is one)
// and cancels any pending join request from the same user on the same
// connection. Calling this on the host connection is benign bookkeeping
// only — hosts leave via UnregisterProject.
func (s *Store) LeaveProject(connectionID ConnectionID, projectID ProjectID) (LeftProject, error) {
	userID, err := s.UserIDForConnection(connectionID)
	if err != nil {
		return LeftProject{}, err
	}
	project, ok := s.projects[projectID]
	if !ok {
		return LeftProject{}, ErrUnknownProject
	}

	removeCollaborator := false
	if guest, ok := project.Guests[connectionID]; ok {
		delete(project.Guests, connectionID)
		delete(project.ActiveReplicaIDs, guest.ReplicaID)
		removeCollaborator = true
	}

	var cancelRequest *UserID
	if receipts, ok := project.JoinRequests[userID]; ok {
		kept := receipts[:0]
		for _, r := range receipts {
			if r.SenderID != connectionID {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(project.JoinRequests, userID)
			u := userID
			cancelRequest = &u
		} else {
			project.JoinRequests[userID] = kept
		}
	}

	if conn, ok := s.connections[connectionID]; ok {
		delete(conn.projects, projectID)
	}

	connectionIDs := project.ConnectionIDs()
	unshare := len(connectionIDs) <= 1 && len(project.JoinRequests) == 0
	if unshare {
		project.LanguageServers = nil
		for _, worktree := range project.Worktrees {
			worktree.DiagnosticSummaries = make(map[string]proto.DiagnosticSummary)
			worktree.Entries = make(map[uint64]proto.Entry)
		}
	}

	return LeftProject{
		HostConnectionID:   project.HostConnectionID,
		HostUserID:         project.Host.UserID,
		ConnectionIDs:      connectionIDs,
		CancelRequest:      cancelRequest,
		Unshare:            unshare,
		RemoveCollaborator: removeCollaborator,
	}, nil
}

// UpdateWorktree applies an incremental scan update from connectionID (host
// or guest) to worktreeID of projectID, creating the worktree on demand. The
// net effect on entries is (entries - removed) ∪ updated, updated winning on
// id collision, regardless of call order between removed and updated.
func (s *Store) UpdateWorktree(connectionID ConnectionID, projectID ProjectID, worktreeID WorktreeID, rootName string, removed []uint64, updated []proto.Entry, scanID uint64, isLastUpdate bool) ([]ConnectionID, bool, error) {
	project, err := s.writeProject(projectID, connectionID)
	if err != nil {
		return nil, false, err
	}
	if !project.Online {
		return nil, false, ErrProjectOffline
	}

	connectionIDs := project.ConnectionIDs()
	worktree, ok := project.Worktrees[worktreeID]
	if !ok {
		worktree = newWorktree("", false)
		project.Worktrees[worktreeID] = worktree
	}
	metadataChanged := rootName != worktree.RootName
	worktree.RootName = rootName

	for _, id := range removed {
		delete(worktree.Entries, id)
	}
	for _, entry := range updated {
		worktree.Entries[entry.ID] = entry
	}

	worktree.ScanID = scanID
	worktree.IsComplete = isLastUpdate

	return connectionIDs, metadataChanged, nil
}

// ProjectConnectionIDs returns the connection ids of projectID, visible only
// to its host or a guest.
func (s *Store) ProjectConnectionIDs(projectID ProjectID, actingConnectionID ConnectionID) ([]ConnectionID, error) {
	project, err := s.ReadProject(projectID, actingConnectionID)
	if err != nil {
		return nil, err
	}
	return project.ConnectionIDs(), nil
}

// Project returns projectID without an access check.
func (s *Store) Project(projectID ProjectID) (*Project, error) {
	project, ok := s.projects[projectID]
	if !ok {
		return nil, ErrUnknownProject
	}
	return project, nil
}

// Projects returns every project in ascending project-id order.
func (s *Store) Projects() []ProjectEntry {
	ids := make([]ProjectID, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sortProjectIDs(ids)
	entries := make([]ProjectEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, ProjectEntry{ID: id, Project: s.projects[id]})
	}
	return entries
}

// ProjectEntry pairs a project with its id, the shape Projects() iterates.
type ProjectEntry struct {
	ID      ProjectID
	Project *Project
}

// ReadProject returns projectID if connectionID is its host or a guest.
func (s *Store) ReadProject(projectID ProjectID, connectionID ConnectionID) (*Project, error) {
	project, ok := s.projects[projectID]
	if !ok {
		return nil, ErrUnknownProject
	}
	if project.HostConnectionID == connectionID {
		return project, nil
	}
	if _, ok := project.Guests[connectionID]; ok {
		return project, nil
	}
	return nil, ErrUnknownProject
}

// writeProject is ReadProject's mutable counterpart, used internally by
// operations that need to both authorize and mutate in one lookup.
func (s *Store) writeProject(projectID ProjectID, connectionID ConnectionID) (*Project, error) {
	return s.ReadProject(projectID, connectionID)
}
