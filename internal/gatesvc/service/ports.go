package service

import (
	"context"
	"time"

	"github.com/avvvet/gatepass-services/internal/gatesvc/models"
	"github.com/avvvet/gatepass-services/internal/gatesvc/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CardRepository interface {
	SearchIDs(ctx context.Context, pattern string, status models.CardStatus) ([]string, error)
	GetByCardIDs(ctx context.Context, cardIDs []string) ([]*models.Card, error)
	ListByStatus(ctx context.Context, status models.CardStatus) ([]*models.Card, error)
	Reserve(ctx context.Context, cardID string, memberID primitive.ObjectID) error
	Release(ctx context.Context, cardID string, memberID primitive.ObjectID) error
	Unreserve(ctx context.Context, cardID string, memberID primitive.ObjectID) error
	ReplacePool(ctx context.Context, cardIDs []string) error
	Summary(ctx context.Context) (*models.CardSummary, error)
}

type VisitorRepository interface {
	GetByPhone(ctx context.Context, phone string) (*models.Visitor, error)
	EnsureVisitor(ctx context.Context, phone, name string) (*models.Visitor, bool, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Visitor, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	SetGroupID(ctx context.Context, sessionID, groupID primitive.ObjectID) error
	SetCheckout(ctx context.Context, sessionID primitive.ObjectID, exitGate *string, at *time.Time) error
	FindOpenByVisitor(ctx context.Context, visitorID primitive.ObjectID) (*models.Session, error)
	CountOpenByVisitor(ctx context.Context, visitorID primitive.ObjectID) (int64, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Session, error)
	List(ctx context.Context, from, to *time.Time) ([]*models.Session, error)
	DistinctPurposes(ctx context.Context, pattern string) ([]string, error)
	DeleteSession(ctx context.Context, sessionID primitive.ObjectID) error
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Group, error)
	FindOpenByCards(ctx context.Context, cardIDs []string) ([]*models.Group, error)
	ListOpen(ctx context.Context) ([]*models.Group, error)
	CheckoutMembers(ctx context.Context, groupID primitive.ObjectID, memberIDs []primitive.ObjectID, exitGate string, at time.Time) (int64, error)
	Closures(ctx context.Context, groupIDs []primitive.ObjectID) ([]store.GroupClosure, error)
	DeleteGroup(ctx context.Context, groupID primitive.ObjectID) error
}

// EventPublisher fans gate events out to other services and consoles.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, interface{}) error { return nil }

var (
	_ CardRepository    = (*store.CardStore)(nil)
	_ CardRepository    = (*store.MemoryCardStore)(nil)
	_ VisitorRepository = (*store.VisitorStore)(nil)
	_ VisitorRepository = (*store.MemoryVisitorStore)(nil)
	_ SessionRepository = (*store.SessionStore)(nil)
	_ SessionRepository = (*store.MemorySessionStore)(nil)
	_ GroupRepository   = (*store.GroupStore)(nil)
	_ GroupRepository   = (*store.MemoryGroupStore)(nil)
)
