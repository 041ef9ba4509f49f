package rpcserver

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/bang-go/collabd/contrib/auth/jwtx"
	"github.com/bang-go/collabd/proto"
	"github.com/bang-go/collabd/session"
	"github.com/bang-go/collabd/transport/wsx"
)

// connectionRegistry maps a live wsx.Connect to the session.ConnectionID
// the store assigned it. The store itself has no notion of a socket; this
// is the seam between the two.
type connectionRegistry struct {
	mu      sync.RWMutex
	byConn  map[wsx.Connect]session.ConnectionID
	nextID  uint32
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{byConn: make(map[wsx.Connect]session.ConnectionID)}
}

func (r *connectionRegistry) assign(c wsx.Connect) session.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := session.ConnectionID(r.nextID)
	r.byConn[c] = id
	return id
}

func (r *connectionRegistry) lookup(c wsx.Connect) (session.ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[c]
	return id, ok
}

func (r *connectionRegistry) forget(c wsx.Connect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, c)
}

// onConnect runs once per accepted socket, immediately after the websocket
// handshake. It authenticates the connection (again; beforeUpgrade already
// checked the token, but only onConnect has a Connect to bind identity to),
// registers it with the store, and labels the Connect with both identities
// the Hub indexes by: the user id (ID, for Kick and user-wide pushes) and
// the store connection id (PeerID, for the per-socket sends every store
// fan-out list is addressed with).
func (s *Server) onConnect(c wsx.Connect, r *http.Request) error {
	claims, err := s.claimsFromRequest(r)
	if err != nil {
		return err
	}

	connID := s.conns.assign(c)
	c.SetID(strconv.FormatInt(int64(claims.UserID), 10))
	c.SetPeerID(peerIDString(connID))
	c.Set("collabd:user_id", claims.UserID)
	c.Set("collabd:admin", claims.Admin)

	s.withStore(func(store *session.Store) {
		store.AddConnection(connID, session.UserID(claims.UserID), claims.Admin)
	})
	return nil
}

func (s *Server) claimsFromRequest(r *http.Request) (jwtx.ConnectionClaims, error) {
	if s.cfg.JWT == nil {
		// No auth configured: accept an explicit user_id query param, useful
		// for local development and the test harness.
		uid, _ := strconv.Atoi(r.URL.Query().Get("user_id"))
		return jwtx.ConnectionClaims{UserID: int32(uid)}, nil
	}
	claims, err := s.cfg.JWT.Verify(r.URL.Query().Get("token"))
	if err != nil {
		return jwtx.ConnectionClaims{}, err
	}
	return *claims, nil
}

// handleConnection is the wsx handler loop: one goroutine per socket,
// reading Envelopes and dispatching them against the store until the
// connection closes, then unwinding everything RemoveConnection reports.
func (s *Server) handleConnection(c wsx.Connect) {
	connID, ok := s.conns.lookup(c)
	if !ok {
		return
	}
	s.hub.Register(c)

	defer func() {
		s.hub.Unregister(c)
		s.conns.forget(c)
		s.disconnect(connID)
	}()

	ctx := context.Background()
	s.pushInitialContacts(ctx, c, connID)

	for {
		_, data, err := c.ReadMessage(ctx)
		if err != nil {
			return
		}
		s.dispatch(ctx, c, connID, data)
	}
}

// disconnect unwinds connID's side effects and notifies every connection
// session.RemoveConnection says was affected.
func (s *Server) disconnect(connID session.ConnectionID) {
	var removed session.RemovedConnectionState
	s.withStore(func(store *session.Store) {
		r, err := store.RemoveConnection(connID)
		if err == nil {
			removed = r
		}
	})

	for projectID, project := range removed.HostedProjects {
		s.notifyProjectUnregistered(projectID, project)
	}
	for projectID := range removed.GuestProjectIDs {
		s.notifyProjectLeft(projectID)
	}
}

// sendTo pushes one payload to each named connection through the fan-out
// pool, so a slow socket never blocks the store's dispatch goroutine. The
// payload is marshaled once, before any mutation can follow the store
// operation that produced it.
func (s *Server) sendTo(connIDs []session.ConnectionID, build func() any) {
	if len(connIDs) == 0 {
		return
	}
	data, err := jsonMarshal(build())
	if err != nil {
		return
	}
	for _, id := range connIDs {
		peerID := peerIDString(id)
		_ = s.pool.Submit(func() {
			s.hub.SendToPeer(context.Background(), peerID, data)
		})
	}
}

// peerIDString renders a store connection id in the form the Hub's peer
// index is keyed by (see onConnect).
func peerIDString(connID session.ConnectionID) string {
	return strconv.FormatUint(uint64(connID), 10)
}

func (s *Server) pushInitialContacts(ctx context.Context, c wsx.Connect, connID session.ConnectionID) {
	if s.cfg.Contacts == nil {
		return
	}
	var userID session.UserID
	s.withStore(func(store *session.Store) {
		uid, _ := store.UserIDForConnection(connID)
		userID = uid
	})

	contacts, err := s.cfg.Contacts.ContactsForUser(ctx, userID)
	if err != nil {
		s.log.Warn(ctx, "contacts_lookup_failed", "user_id", userID, "error", err)
		return
	}

	var update any
	s.withStore(func(store *session.Store) {
		update = store.BuildInitialContactsUpdate(contacts)
	})
	_ = c.SendJSON(ctx, pushEnvelope("update_contacts", update))
}

// pushEnvelope frames an unsolicited server push. Each push gets its own
// id so clients can dedup deliveries that arrive twice via the broker.
func pushEnvelope(method string, payload any) any {
	return struct {
		ID      string `json:"id"`
		Method  string `json:"method"`
		Payload any    `json:"payload"`
	}{ID: proto.NewRequestID(), Method: method, Payload: payload}
}
