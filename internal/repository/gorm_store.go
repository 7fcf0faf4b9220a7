package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"guesswho/internal/model"
)

// GormStore keeps sessions in PostgreSQL. Each mutation locks the session row
// with SELECT ... FOR UPDATE before reading the rest of the session.
type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	if db == nil {
		panic("database connection cannot be nil for GormStore")
	}
	return &GormStore{db: db}
}

// Migrate creates the tables and the indexes AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.Role{},
		&model.Session{},
		&model.SessionRole{},
		&model.Player{},
		&model.Guess{},
	)
	if err != nil {
		return err
	}

	// One active session per external instance.
	if err := db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_instance ON sessions(external_instance_id) WHERE completed = false").Error; err != nil {
		return err
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_players_session_seat ON players(session_id, seat)").Error; err != nil {
		return err
	}
	return nil
}

func (s *GormStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, classifyGorm(fmt.Errorf("gorm: list roles: %w", err))
	}
	return roles, nil
}

func (s *GormStore) UpsertRoles(ctx context.Context, roles []model.Role) error {
	if len(roles) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "special"}),
	}).Create(&roles).Error
	if err != nil {
		return classifyGorm(fmt.Errorf("gorm: upsert roles: %w", err))
	}
	return nil
}

func (s *GormStore) CreateSession(ctx context.Context, st *model.SessionState) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(st.Session).Error; err != nil {
			return fmt.Errorf("gorm: create session: %w", err)
		}
		if err := tx.Create(&st.Roles).Error; err != nil {
			return fmt.Errorf("gorm: create session roles: %w", err)
		}
		if err := tx.Create(&st.Players).Error; err != nil {
			return fmt.Errorf("gorm: create players: %w", err)
		}
		return nil
	})
	return classifyGorm(err)
}

func (s *GormStore) GetSessionByInstance(ctx context.Context, externalInstanceID string) (*model.SessionState, error) {
	var st *model.SessionState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		err := tx.Where("external_instance_id = ?", externalInstanceID).
			Order("completed ASC, created_at DESC").
			First(&session).Error
		if err != nil {
			return err
		}
		st, err = loadGormState(tx, &session)
		return err
	})
	if err != nil {
		return nil, classifyGorm(err)
	}
	return st, nil
}

func (s *GormStore) GetState(ctx context.Context, sessionID string) (*model.SessionState, error) {
	var st *model.SessionState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		if err := tx.First(&session, "id = ?", sessionID).Error; err != nil {
			return err
		}
		var err error
		st, err = loadGormState(tx, &session)
		return err
	})
	if err != nil {
		return nil, classifyGorm(err)
	}
	return st, nil
}

func (s *GormStore) FindPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	var player model.Player
	if err := s.db.WithContext(ctx).First(&player, "id = ?", playerID).Error; err != nil {
		return nil, classifyGorm(err)
	}
	return &player, nil
}

func (s *GormStore) Mutate(ctx context.Context, sessionID string, fn MutateFunc) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, "id = ?", sessionID).Error
		if err != nil {
			return err
		}
		st, err := loadGormState(tx, &session)
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

		updates := map[string]interface{}{"version": gorm.Expr("version + 1")}
		if changes.Session != nil {
			updates["completed"] = changes.Session.Completed
			updates["round"] = changes.Session.Round
			updates["updated_at"] = changes.Session.UpdatedAt
		}
		if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("gorm: update session: %w", err)
		}
		for _, p := range changes.Players {
			err := tx.Model(&model.Player{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
				"assigned_session_role_id": p.AssignedSessionRoleID,
				"score":                    p.Score,
				"round_completed":          p.RoundCompleted,
				"submitted_round":          p.SubmittedRound,
			}).Error
			if err != nil {
				return fmt.Errorf("gorm: update player %s: %w", p.ID, err)
			}
		}
		if len(changes.Guesses) > 0 {
			if err := tx.Create(&changes.Guesses).Error; err != nil {
				return fmt.Errorf("gorm: insert guesses: %w", err)
			}
		}
		return nil
	})
	return classifyGorm(err)
}

func (s *GormStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func loadGormState(tx *gorm.DB, session *model.Session) (*model.SessionState, error) {
	st := &model.SessionState{Session: session}
	if err := tx.Where("session_id = ?", session.ID).Order("name").Find(&st.Roles).Error; err != nil {
		return nil, fmt.Errorf("gorm: load session roles: %w", err)
	}
	if err := tx.Where("session_id = ?", session.ID).Order("seat").Find(&st.Players).Error; err != nil {
		return nil, fmt.Errorf("gorm: load players: %w", err)
	}
	if err := tx.Where("session_id = ? AND round = ?", session.ID, session.Round).Order("created_at").Find(&st.Guesses).Error; err != nil {
		return nil, fmt.Errorf("gorm: load guesses: %w", err)
	}
	return st, nil
}

// Postgres error codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// classifyGorm maps driver errors onto the repository taxonomy and leaves
// everything else, including decisions returned by a MutateFunc, untouched.
func classifyGorm(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
