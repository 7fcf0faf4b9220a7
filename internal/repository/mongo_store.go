package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"guesswho/internal/model"
)

// MongoStore keeps sessions in MongoDB. Multi-document transactions need a
// replica set; a single-node replica set is enough for development.
type MongoStore struct {
	client   *mongo.Client
	db       *mongo.Database
	roles    RoleRepo
	sessions SessionRepo
	players  PlayerRepo
	guesses  GuessRepo
	log      *logrus.Entry
}

func NewMongoStore(ctx context.Context, client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	s := &MongoStore{
		client:   client,
		db:       db,
		roles:    NewRoleRepo(db),
		sessions: NewSessionRepo(db),
		players:  NewPlayerRepo(db),
		guesses:  NewGuessRepo(db),
		log:      logrus.WithField("component", "mongo_store"),
	}
	s.ensureIndexes(ctx)
	return s
}

func (s *MongoStore) ensureIndexes(ctx context.Context) {
	s.createIndex(ctx, s.db.Collection("roles"), bson.D{{Key: "name", Value: 1}}, options.Index().SetUnique(true))

	// One active session per external instance.
	s.createIndex(ctx, s.db.Collection("sessions"), bson.D{{Key: "externalInstanceId", Value: 1}},
		options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"completed": false}))
	s.createIndex(ctx, s.db.Collection("sessions"), bson.D{
		{Key: "externalInstanceId", Value: 1},
		{Key: "createdAt", Value: -1},
	}, nil)

	s.createIndex(ctx, s.db.Collection("session_roles"), bson.D{{Key: "sessionId", Value: 1}}, nil)
	s.createIndex(ctx, s.db.Collection("players"), bson.D{
		{Key: "sessionId", Value: 1},
		{Key: "seat", Value: 1},
	}, nil)

	// A player guesses each target at most once per round.
	s.createIndex(ctx, s.db.Collection("guesses"), bson.D{
		{Key: "sessionId", Value: 1},
		{Key: "round", Value: 1},
		{Key: "guessingPlayerId", Value: 1},
		{Key: "targetPlayerId", Value: 1},
	}, options.Index().SetUnique(true))

	s.log.Info("indexes ensured")
}

func (s *MongoStore) createIndex(ctx context.Context, coll *mongo.Collection, keys bson.D, opts *options.IndexOptions) {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		s.log.WithError(err).Warnf("failed to create index on %s", coll.Name())
	}
}

// withTransaction runs fn in a snapshot transaction committed with majority
// write concern. It never retries: a transient failure is classified and
// returned so the caller decides.
func (s *MongoStore) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return classifyMongo(err)
	}
	defer sess.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		return classifyMongo(err)
	}

	sc := mongo.NewSessionContext(ctx, sess)
	if err := fn(sc); err != nil {
		_ = sess.AbortTransaction(context.Background())
		return classifyMongo(err)
	}
	if err := sess.CommitTransaction(sc); err != nil {
		return classifyMongo(err)
	}
	return nil
}

func (s *MongoStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, classifyMongo(fmt.Errorf("failed to list roles: %w", err))
	}
	return roles, nil
}

func (s *MongoStore) UpsertRoles(ctx context.Context, roles []model.Role) error {
	for i := range roles {
		if err := s.roles.Upsert(ctx, &roles[i]); err != nil {
			return classifyMongo(fmt.Errorf("failed to upsert role %s: %w", roles[i].Name, err))
		}
	}
	return nil
}

func (s *MongoStore) CreateSession(ctx context.Context, st *model.SessionState) error {
	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if err := s.sessions.Create(sc, st.Session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		if err := s.sessions.CreateRoles(sc, st.Roles); err != nil {
			return fmt.Errorf("failed to create session roles: %w", err)
		}
		if err := s.players.CreateMany(sc, st.Players); err != nil {
			return fmt.Errorf("failed to create players: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) GetSessionByInstance(ctx context.Context, externalInstanceID string) (*model.SessionState, error) {
	var st *model.SessionState
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		session, err := s.sessions.GetByInstance(sc, externalInstanceID)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return ErrNotFound
		}
		st, err = s.loadState(sc, session)
		return err
	})
	return st, err
}

func (s *MongoStore) GetState(ctx context.Context, sessionID string) (*model.SessionState, error) {
	var st *model.SessionState
	err := s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		session, err := s.sessions.GetByID(sc, sessionID)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return ErrNotFound
		}
		st, err = s.loadState(sc, session)
		return err
	})
	return st, err
}

func (s *MongoStore) FindPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	player, err := s.players.GetByID(ctx, playerID)
	if err != nil {
		return nil, classifyMongo(fmt.Errorf("failed to get player: %w", err))
	}
	if player == nil {
		return nil, ErrNotFound
	}
	return player, nil
}

// Mutate claims the session document first, so the read that fn decides on
// cannot be invalidated by a concurrent commit without this transaction aborting.
func (s *MongoStore) Mutate(ctx context.Context, sessionID string, fn MutateFunc) error {
	return s.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if err := s.sessions.Touch(sc, sessionID); err != nil {
			return err
		}
		session, err := s.sessions.GetByID(sc, sessionID)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return ErrNotFound
		}
		st, err := s.loadState(sc, session)
		if err != nil {
			return err
		}

		changes, err := fn(st)
		if err != nil {
			return err
		}
		if changes.Empty() {
			return nil
		}

		if changes.Session != nil {
			if err := s.sessions.UpdateProgress(sc, changes.Session); err != nil {
				return fmt.Errorf("failed to update session: %w", err)
			}
		}
		for i := range changes.Players {
			if err := s.players.Update(sc, &changes.Players[i]); err != nil {
				return fmt.Errorf("failed to update player %s: %w", changes.Players[i].ID, err)
			}
		}
		if err := s.guesses.InsertMany(sc, changes.Guesses); err != nil {
			return fmt.Errorf("failed to insert guesses: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) loadState(ctx context.Context, session *model.Session) (*model.SessionState, error) {
	roles, err := s.sessions.GetRoles(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session roles: %w", err)
	}
	players, err := s.players.GetBySession(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get players: %w", err)
	}
	guesses, err := s.guesses.GetByRound(ctx, session.ID, session.Round)
	if err != nil {
		return nil, fmt.Errorf("failed to get guesses: %w", err)
	}
	return &model.SessionState{Session: session, Roles: roles, Players: players, Guesses: guesses}, nil
}

// classifyMongo maps driver errors onto the repository taxonomy and leaves
// everything else, including decisions returned by a MutateFunc, untouched.
func classifyMongo(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) &&
		(labeled.HasErrorLabel("TransientTransactionError") || labeled.HasErrorLabel("UnknownTransactionCommitResult")) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
