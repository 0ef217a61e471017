package directory

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"classrelay/pkg/database"
	"classrelay/pkg/types"
)

// Store is a SQLite-backed user directory: the roster of platform users and
// their course enrollments, used to gate joins to course-gated rooms.
// Reads run concurrently on the pool; writes funnel through a single
// goroutine, which is how SQLite stays contention-free under WAL.
type Store struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewStore opens the roster database, applies migrations and starts the
// writer goroutine.
func NewStore(cfg *database.Config) (*Store, error) {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid directory database config: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open roster database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := database.ApplyOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := database.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate roster schema: %w", err)
	}

	store := &Store{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	store.wg.Add(1)
	go store.writeLoop()

	return store, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// a failed write once.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				log.Printf("roster write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(s.db)
				if err != nil {
					log.Printf("roster write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// GetUserByID returns the roster record for a user, or (nil, nil) when the
// user does not exist.
func (s *Store) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	user := &types.User{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, role FROM users WHERE id = ?", id,
	).Scan(&user.Name, &user.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT course_id FROM enrollments WHERE user_id = ? ORDER BY course_id", id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		user.EnrolledCourseIDs = append(user.EnrolledCourseIDs, courseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read enrollments for %s: %w", id, err)
	}

	return user, nil
}

// UpsertUser inserts or replaces a user record and its enrollment set
// atomically.
func (s *Store) UpsertUser(ctx context.Context, user *types.User) error {
	if user == nil || !types.IsValidUserID(user.ID) {
		return types.ErrInvalidUserID
	}
	if user.Role != "" && !types.IsValidRole(user.Role) {
		return types.ErrInvalidRole
	}

	role := user.Role
	if role == "" {
		role = types.RoleStudent
	}

	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, name, role) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, role = excluded.role
		`, user.ID, user.Name, role)
		if err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM enrollments WHERE user_id = ?", user.ID); err != nil {
			return fmt.Errorf("failed to clear enrollments for %s: %w", user.ID, err)
		}
		for _, courseID := range user.EnrolledCourseIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO enrollments (user_id, course_id) VALUES (?, ?)",
				user.ID, courseID,
			); err != nil {
				return fmt.Errorf("failed to insert enrollment %s/%s: %w", user.ID, courseID, err)
			}
		}

		return tx.Commit()
	})
}

// DeleteUser removes a user and, via the foreign key cascade, their
// enrollments.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.executeWrite(func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete user %s: %w", id, err)
		}
		return nil
	})
}

// Close stops the writer goroutine and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
	return s.db.Close()
}
