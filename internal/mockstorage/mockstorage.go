// Package mockstorage provides a testify-based mock of the storage backends.
// It lets service and router tests simulate storage failures that the real
// in-memory backend never produces.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/todolist/internal/models"
)

// StorageMock implements storage.Storage on top of testify's mock.Mock.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers, when set, replaces the generic mock handler
	// for GetNumberOfUsers.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnGetNumberOfTodos, when set, replaces the generic mock handler
	// for GetNumberOfTodos.
	OnGetNumberOfTodos func(ctx context.Context) (int64, error)
}

func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) CreateUser(ctx context.Context, usr *models.User) (string, error) {
	args := m.Called(ctx, usr)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

func (m *StorageMock) CreateTodo(ctx context.Context, todo *models.Todo) (string, error) {
	args := m.Called(ctx, todo)
	return args.String(0), args.Error(1)
}

func (m *StorageMock) GetTodoByID(ctx context.Context, id string) (*models.Todo, error) {
	args := m.Called(ctx, id)
	todo, _ := args.Get(0).(*models.Todo)
	return todo, args.Error(1)
}

func (m *StorageMock) GetTodosByOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	args := m.Called(ctx, userID)
	todos, _ := args.Get(0).([]models.Todo)
	return todos, args.Error(1)
}

func (m *StorageMock) GetPublicTodosExcludingOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	args := m.Called(ctx, userID)
	todos, _ := args.Get(0).([]models.Todo)
	return todos, args.Error(1)
}

func (m *StorageMock) UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *StorageMock) DeleteTodo(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// GetNumberOfUsers returns 0 and no error unless OnGetNumberOfUsers is set.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	return 0, nil
}

// GetNumberOfTodos returns 0 and no error unless OnGetNumberOfTodos is set.
func (m *StorageMock) GetNumberOfTodos(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfTodos != nil {
		return m.OnGetNumberOfTodos(ctx)
	}
	return 0, nil
}

func (m *StorageMock) Close() error {
	return nil
}
