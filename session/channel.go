package session

// channel is a lightweight pub/sub group. It exists only while non-empty:
// the row is removed the moment its last member leaves.
type channel struct {
	connectionIDs map[ConnectionID]struct{}
}

// JoinChannel subscribes connectionID to channelID, creating the channel row
// on demand. A no-op if connectionID is not known. Idempotent.
func (s *Store) JoinChannel(connectionID ConnectionID, channelID ChannelID) {
	conn, ok := s.connections[connectionID]
	if !ok {
		return
	}
	conn.channels[channelID] = struct{}{}

	ch, ok := s.channels[channelID]
	if !ok {
		ch = &channel{connectionIDs: make(map[ConnectionID]struct{})}
		s.channels[channelID] = ch
	}
	ch.connectionIDs[connectionID] = struct{}{}
}

// LeaveChannel unsubscribes connectionID from channelID. A no-op if
// connectionID is not known. Idempotent. Drops the channel row if it empties.
func (s *Store) LeaveChannel(connectionID ConnectionID, channelID ChannelID) {
	conn, ok := s.connections[connectionID]
	if !ok {
		return
	}
	delete(conn.channels, channelID)

	ch, ok := s.channels[channelID]
	if !ok {
		return
	}
	delete(ch.connectionIDs, connectionID)
	if len(ch.connectionIDs) == 0 {
		delete(s.channels, channelID)
	}
}

// ChannelConnectionIDs returns the members of channelID.
func (s *Store) ChannelConnectionIDs(channelID ChannelID) ([]ConnectionID, error) {
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrUnknownChannel
	}
	return connectionIDSetToSlice(ch.connectionIDs), nil
}

func connectionIDSetToSlice(set map[ConnectionID]struct{}) []ConnectionID {
	ids := make([]ConnectionID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
