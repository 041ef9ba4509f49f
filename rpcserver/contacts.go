package rpcserver

import (
	"context"

	"github.com/bang-go/collabd/session"
	"gorm.io/gorm"
)

// ContactStore answers the question the store itself deliberately can't:
// who is userID's contact, and which of those contacts should be announced
// as accepted/outgoing/incoming. The contacts database lives outside the
// store; this is the concrete implementation a running server needs
// behind it.
type ContactStore interface {
	ContactsForUser(ctx context.Context, userID session.UserID) ([]session.Contact, error)
}

// contactRow is the persisted accepted-or-pending relationship between two
// users. A row with Accepted=false is a pending request from RequesterID to
// ResponderID.
type contactRow struct {
	ID           uint64 `gorm:"primaryKey"`
	RequesterID  int32  `gorm:"index:idx_contact_requester"`
	ResponderID  int32  `gorm:"index:idx_contact_responder"`
	Accepted     bool
	ShouldNotify bool
}

func (contactRow) TableName() string { return "contacts" }

// gormContactStore implements ContactStore on top of store/gormx, the
// shared SQL client builder repurposed here as the contacts database
// driver.
type gormContactStore struct {
	db *gorm.DB
}

// NewGormContactStore wraps an already-constructed *gorm.DB (built with
// store/gormx.New) as a ContactStore.
func NewGormContactStore(db *gorm.DB) ContactStore {
	return &gormContactStore{db: db}
}

// ContactsForUser loads every relationship row involving userID and
// classifies it the way session.BuildInitialContactsUpdate expects:
// accepted relationships regardless of who requested them, outgoing
// requests userID sent and is waiting on, incoming requests userID hasn't
// answered yet.
func (g *gormContactStore) ContactsForUser(ctx context.Context, userID session.UserID) ([]session.Contact, error) {
	var rows []contactRow
	err := g.db.WithContext(ctx).
		Where("requester_id = ? OR responder_id = ?", int32(userID), int32(userID)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	contacts := make([]session.Contact, 0, len(rows))
	for _, row := range rows {
		other := session.UserID(row.ResponderID)
		if session.UserID(row.ResponderID) == userID {
			other = session.UserID(row.RequesterID)
		}

		switch {
		case row.Accepted:
			contacts = append(contacts, session.Contact{Kind: session.ContactAccepted, UserID: other, ShouldNotify: row.ShouldNotify})
		case row.RequesterID == int32(userID):
			contacts = append(contacts, session.Contact{Kind: session.ContactOutgoing, UserID: other})
		default:
			contacts = append(contacts, session.Contact{Kind: session.ContactIncoming, UserID: other, ShouldNotify: row.ShouldNotify})
		}
	}
	return contacts, nil
}
