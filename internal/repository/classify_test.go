package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

func TestClassifyMongo(t *testing.T) {
	decision := errors.New("invalid transition")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate key", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}, ErrConflict},
		{"transient label", mongo.CommandError{Code: 112, Labels: []string{"TransientTransactionError"}}, ErrTransient},
		{"unknown commit", mongo.CommandError{Code: 50, Labels: []string{"UnknownTransactionCommitResult"}}, ErrTransient},
		{"deadline", fmt.Errorf("find: %w", context.DeadlineExceeded), ErrTransient},
		{"no documents", mongo.ErrNoDocuments, ErrNotFound},
		{"already classified", fmt.Errorf("%w: gone", ErrNotFound), ErrNotFound},
		{"decision passes through", decision, decision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyMongo(tt.err), tt.want)
		})
	}
	assert.NoError(t, classifyMongo(nil))
	assert.NotErrorIs(t, classifyMongo(decision), ErrTransient)
}

func TestClassifyGorm(t *testing.T) {
	decision := errors.New("permission denied")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"serialization failure", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), ErrTransient},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrTransient},
		{"connection exception", &pgconn.PgError{Code: "08006"}, ErrTransient},
		{"record not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"deadline", context.DeadlineExceeded, ErrTransient},
		{"decision passes through", decision, decision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyGorm(tt.err), tt.want)
		})
	}

	other := &pgconn.PgError{Code: "23503"}
	assert.NotErrorIs(t, classifyGorm(other), ErrConflict)
	assert.NotErrorIs(t, classifyGorm(other), ErrTransient)
}
