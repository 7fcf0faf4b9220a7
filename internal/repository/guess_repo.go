package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guesswho/internal/model"
)

type GuessRepo interface {
	InsertMany(ctx context.Context, guesses []model.Guess) error
	GetByRound(ctx context.Context, sessionID string, round int) ([]model.Guess, error)
}

type guessRepo struct {
	collection *mongo.Collection
}

func NewGuessRepo(db *mongo.Database) GuessRepo {
	return &guessRepo{
		collection: db.Collection("guesses"),
	}
}

func (r *guessRepo) InsertMany(ctx context.Context, guesses []model.Guess) error {
	if len(guesses) == 0 {
		return nil
	}
	docs := make([]interface{}, len(guesses))
	for i := range guesses {
		docs[i] = guesses[i]
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *guessRepo) GetByRound(ctx context.Context, sessionID string, round int) ([]model.Guess, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"sessionId": sessionID, "round": round}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	guesses := []model.Guess{}
	if err := cursor.All(ctx, &guesses); err != nil {
		return nil, err
	}
	return guesses, nil
}
