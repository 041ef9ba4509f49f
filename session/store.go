package session

import (
	"sort"

	"github.com/bang-go/collabd/proto"
)

// Store is the in-memory session state store: six cross-referenced tables
// (connections, connections-by-user, rooms, projects, channels, plus the
// room id allocator) mutated only through the exported operations on this
// type. See the package doc for the concurrency contract.
type Store struct {
	connections       map[ConnectionID]*connectionState
	connectionsByUser map[UserID]*userConnectionState
	nextRoomID        RoomID
	rooms             map[RoomID]*proto.Room
	projects          map[ProjectID]*Project
	channels          map[ChannelID]*channel
}

// New returns an empty Store, ready for AddConnection calls.
func New() *Store {
	return &Store{
		connections:       make(map[ConnectionID]*connectionState),
		connectionsByUser: make(map[UserID]*userConnectionState),
		rooms:             make(map[RoomID]*proto.Room),
		projects:          make(map[ProjectID]*Project),
		channels:          make(map[ChannelID]*channel),
	}
}

func sortProjectIDs(ids []ProjectID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
