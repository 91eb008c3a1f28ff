// Package postgresdb provides a PostgreSQL-based storage backend for users and todos.
// The schema is managed by goose migrations embedded into the binary.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/todolist/internal/db/postgresdb/migrations"
	"github.com/patric-chuzhbe/todolist/internal/models"
)

// PostgresDB is a PostgreSQL-backed implementation of the todolist storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops every table of the public schema before migrating.
// Used by integration tests.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := newWithDB(database, connectionTimeout)

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := result.migrate(ctx); err != nil {
		return nil, err
	}

	return result, nil
}

func newWithDB(database *sql.DB, connectionTimeout time.Duration) *PostgresDB {
	return &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}
}

func (db *PostgresDB) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.SetDialect()` calling: %w",
			err,
		)
	}

	if err := goose.UpContext(ctx, db.database, "."); err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.UpContext()` calling: %w",
			err,
		)
	}

	return nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

// CreateUser inserts a new user and returns the id the database assigned.
// A taken email is reported as models.ErrUserAlreadyExists.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *models.User) (string, error) {
	var userID string
	err := db.database.QueryRowContext(
		ctx,
		`INSERT INTO users (email, password) VALUES ($1, $2) RETURNING id`,
		usr.Email,
		usr.Password,
	).Scan(&userID)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.UniqueViolation {
			return "", models.ErrUserAlreadyExists
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return userID, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	usr := &models.User{}
	err := db.database.QueryRowContext(
		ctx,
		`SELECT id, email, password FROM users WHERE email = $1`,
		email,
	).Scan(&usr.ID, &usr.Email, &usr.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return usr, nil
}

// CreateTodo inserts todo and returns its id. The owner is not required to exist.
func (db *PostgresDB) CreateTodo(ctx context.Context, todo *models.Todo) (string, error) {
	var todoID string
	err := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO todos (title, description, completed, is_public, user_id)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
		`,
		todo.Title,
		todo.Description,
		todo.Completed,
		todo.IsPublic,
		todo.UserID,
	).Scan(&todoID)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.InvalidTextRepresentation {
			return "", models.ErrInvalidReference
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return todoID, nil
}

func (db *PostgresDB) GetTodoByID(ctx context.Context, id string) (*models.Todo, error) {
	todo := &models.Todo{}
	err := db.database.QueryRowContext(
		ctx,
		`SELECT id, title, description, completed, is_public, user_id FROM todos WHERE id = $1`,
		id,
	).Scan(&todo.ID, &todo.Title, &todo.Description, &todo.Completed, &todo.IsPublic, &todo.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || pgErrorCode(err) == pgerrcode.InvalidTextRepresentation {
			return nil, models.ErrTodoNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return todo, nil
}

// GetTodosByOwner returns every todo owned by userID, private and public alike.
func (db *PostgresDB) GetTodosByOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	return db.queryTodos(
		ctx,
		`
			SELECT id, title, description, completed, is_public, user_id
				FROM todos
				WHERE user_id = $1
				ORDER BY seq
		`,
		userID,
	)
}

// GetPublicTodosExcludingOwner returns the public todos of everyone but userID.
func (db *PostgresDB) GetPublicTodosExcludingOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	return db.queryTodos(
		ctx,
		`
			SELECT id, title, description, completed, is_public, user_id
				FROM todos
				WHERE is_public AND user_id <> $1
				ORDER BY seq
		`,
		userID,
	)
}

func (db *PostgresDB) queryTodos(ctx context.Context, query string, userID string) ([]models.Todo, error) {
	rows, err := db.database.QueryContext(ctx, query, userID)
	if err != nil {
		if pgErrorCode(err) == pgerrcode.InvalidTextRepresentation {
			return nil, models.ErrInvalidReference
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []models.Todo{}
	for rows.Next() {
		var todo models.Todo
		err = rows.Scan(&todo.ID, &todo.Title, &todo.Description, &todo.Completed, &todo.IsPublic, &todo.UserID)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// UpdateTodo applies the non-nil fields of patch. The owner column is never touched.
func (db *PostgresDB) UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE todos
				SET
					title = COALESCE($2, title),
					description = COALESCE($3, description),
					completed = COALESCE($4, completed),
					is_public = COALESCE($5, is_public)
				WHERE id = $1
		`,
		id,
		patch.Title,
		patch.Description,
		patch.Completed,
		patch.IsPublic,
	)

	return db.checkAffected(result, err)
}

func (db *PostgresDB) DeleteTodo(ctx context.Context, id string) error {
	result, err := db.database.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)

	return db.checkAffected(result, err)
}

func (db *PostgresDB) checkAffected(result sql.Result, err error) error {
	if err != nil {
		if pgErrorCode(err) == pgerrcode.InvalidTextRepresentation {
			return models.ErrTodoNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return models.ErrTodoNotFound
	}

	return nil
}

func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (db *PostgresDB) GetNumberOfTodos(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM todos`)
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var count int64
	if err := db.database.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
