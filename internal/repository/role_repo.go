package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"guesswho/internal/model"
)

type RoleRepo interface {
	List(ctx context.Context) ([]model.Role, error)
	Upsert(ctx context.Context, role *model.Role) error
}

type roleRepo struct {
	collection *mongo.Collection
}

func NewRoleRepo(db *mongo.Database) RoleRepo {
	return &roleRepo{
		collection: db.Collection("roles"),
	}
}

func (r *roleRepo) List(ctx context.Context) ([]model.Role, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	roles := []model.Role{}
	if err := cursor.All(ctx, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// Upsert replaces the role with the same name, keeping catalog ids stable across seeds.
func (r *roleRepo) Upsert(ctx context.Context, role *model.Role) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"name": role.Name}, role, opts)
	return err
}
