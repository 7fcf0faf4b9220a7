package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guesswho/internal/model"
)

type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetByInstance(ctx context.Context, externalInstanceID string) (*model.Session, error)
	// Touch bumps the session version. Inside a transaction this claims the
	// session document so a concurrent transaction on it aborts.
	Touch(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, session *model.Session) error

	CreateRoles(ctx context.Context, roles []model.SessionRole) error
	GetRoles(ctx context.Context, sessionID string) ([]model.SessionRole, error)
}

type sessionRepo struct {
	collection *mongo.Collection
	roles      *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("sessions"),
		roles:      db.Collection("session_roles"),
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetByInstance(ctx context.Context, externalInstanceID string) (*model.Session, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: "completed", Value: 1},
		{Key: "createdAt", Value: -1},
	})
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"externalInstanceId": externalInstanceID}, opts).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Touch(ctx context.Context, id string) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"version": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepo) UpdateProgress(ctx context.Context, session *model.Session) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{"$set": bson.M{
		"completed": session.Completed,
		"round":     session.Round,
		"updatedAt": session.UpdatedAt,
	}})
	return err
}

func (r *sessionRepo) CreateRoles(ctx context.Context, roles []model.SessionRole) error {
	docs := make([]interface{}, len(roles))
	for i := range roles {
		docs[i] = roles[i]
	}
	_, err := r.roles.InsertMany(ctx, docs)
	return err
}

func (r *sessionRepo) GetRoles(ctx context.Context, sessionID string) ([]model.SessionRole, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.roles.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	roles := []model.SessionRole{}
	if err := cursor.All(ctx, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}
