package session

import "github.com/bang-go/collabd/proto"

// ContactKind classifies a row the contacts database hands the store; the
// store itself never queries the database, it only shapes what the caller
// already looked up into the wire records clients expect.
type ContactKind int

const (
	ContactAccepted ContactKind = iota
	ContactOutgoing
	ContactIncoming
)

// Contact is one row of a user's contact list, as classified by the
// contacts database, which lives outside the store entirely.
type Contact struct {
	Kind         ContactKind
	UserID       UserID
	ShouldNotify bool
}

// BuildInitialContactsUpdate turns a database-supplied contact
// classification list into the wire snapshot sent to a client on connect.
func (s *Store) BuildInitialContactsUpdate(contacts []Contact) proto.UpdateContacts {
	var update proto.UpdateContacts
	for _, contact := range contacts {
		switch contact.Kind {
		case ContactAccepted:
			update.Contacts = append(update.Contacts, s.ContactForUser(contact.UserID, contact.ShouldNotify))
		case ContactOutgoing:
			update.OutgoingRequests = append(update.OutgoingRequests, int32(contact.UserID))
		case ContactIncoming:
			update.IncomingRequests = append(update.IncomingRequests, proto.IncomingContactRequest{
				RequesterID:  int32(contact.UserID),
				ShouldNotify: contact.ShouldNotify,
			})
		}
	}
	return update
}

// ContactForUser builds a single contact record reflecting the store's
// current view of userID: online status and their online, host-owned
// projects.
func (s *Store) ContactForUser(userID UserID, shouldNotify bool) proto.Contact {
	return proto.Contact{
		UserID:       int32(userID),
		Online:       s.IsUserOnline(userID),
		ShouldNotify: shouldNotify,
		Projects:     s.ProjectMetadataForUser(userID),
	}
}

// ProjectMetadataForUser enumerates every online project hosted by userID,
// across all of their connections, projected to {id, visible worktree root
// names, guest user ids}.
func (s *Store) ProjectMetadataForUser(userID UserID) []proto.ProjectMetadata {
	state, ok := s.connectionsByUser[userID]
	if !ok {
		return nil
	}

	var metadata []proto.ProjectMetadata
	seen := make(map[ProjectID]struct{})
	for connectionID := range state.connectionIDs {
		conn, ok := s.connections[connectionID]
		if !ok {
			continue
		}
		for projectID := range conn.projects {
			if _, dup := seen[projectID]; dup {
				continue
			}
			seen[projectID] = struct{}{}

			project, ok := s.projects[projectID]
			if !ok || project.Host.UserID != userID || !project.Online {
				continue
			}

			var rootNames []string
			for _, worktree := range project.Worktrees {
				if worktree.Visible {
					rootNames = append(rootNames, worktree.RootName)
				}
			}
			var guests []int32
			for _, guest := range project.Guests {
				guests = append(guests, int32(guest.UserID))
			}
			metadata = append(metadata, proto.ProjectMetadata{
				ID:                       uint64(projectID),
				VisibleWorktreeRootNames: rootNames,
				Guests:                   guests,
			})
		}
	}
	return metadata
}
