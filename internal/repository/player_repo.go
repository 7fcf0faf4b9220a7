package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guesswho/internal/model"
)

type PlayerRepo interface {
	CreateMany(ctx context.Context, players []model.Player) error
	GetByID(ctx context.Context, id string) (*model.Player, error)
	GetBySession(ctx context.Context, sessionID string) ([]model.Player, error)
	Update(ctx context.Context, player *model.Player) error
}

type playerRepo struct {
	collection *mongo.Collection
}

func NewPlayerRepo(db *mongo.Database) PlayerRepo {
	return &playerRepo{
		collection: db.Collection("players"),
	}
}

func (r *playerRepo) CreateMany(ctx context.Context, players []model.Player) error {
	docs := make([]interface{}, len(players))
	for i := range players {
		docs[i] = players[i]
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *playerRepo) GetByID(ctx context.Context, id string) (*model.Player, error) {
	var player model.Player
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&player)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &player, nil
}

func (r *playerRepo) GetBySession(ctx context.Context, sessionID string) ([]model.Player, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seat", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	players := []model.Player{}
	if err := cursor.All(ctx, &players); err != nil {
		return nil, err
	}
	return players, nil
}

// Update writes the per-round fields. Identity fields never change after creation.
func (r *playerRepo) Update(ctx context.Context, player *model.Player) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": player.ID}, bson.M{"$set": bson.M{
		"assignedSessionRoleId": player.AssignedSessionRoleID,
		"score":                 player.Score,
		"roundCompleted":        player.RoundCompleted,
		"submittedRound":        player.SubmittedRound,
	}})
	return err
}
