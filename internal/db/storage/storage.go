package storage

import (
	"context"

	"github.com/patric-chuzhbe/todolist/internal/models"
)

// Storage is implemented by every backend under internal/db.
type Storage interface {
	CreateUser(ctx context.Context, usr *models.User) (string, error)

	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateTodo(ctx context.Context, todo *models.Todo) (string, error)

	GetTodoByID(ctx context.Context, id string) (*models.Todo, error)

	GetTodosByOwner(ctx context.Context, userID string) ([]models.Todo, error)

	GetPublicTodosExcludingOwner(ctx context.Context, userID string) ([]models.Todo, error)

	UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error

	DeleteTodo(ctx context.Context, id string) error

	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfTodos(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}
