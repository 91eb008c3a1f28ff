package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/todolist/internal/auth"
	"github.com/patric-chuzhbe/todolist/internal/db/memorystorage"
	"github.com/patric-chuzhbe/todolist/internal/hasher"
	"github.com/patric-chuzhbe/todolist/internal/mockstorage"
	"github.com/patric-chuzhbe/todolist/internal/models"
)

const testHashCost = 4

type mapCache struct {
	entries map[string]string
	hits    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]string{}}
}

func (c *mapCache) UserID(email string) (string, bool) {
	id, found := c.entries[email]
	if found {
		c.hits++
	}
	return id, found
}

func (c *mapCache) Remember(email, userID string) {
	c.entries[email] = userID
}

func newTestAuth(t *testing.T) *auth.Auth {
	t.Helper()
	theAuth, err := auth.New([]byte("test-secret"), time.Hour, "token")
	require.NoError(t, err)
	return theAuth
}

func newTestService(t *testing.T, optionsProto ...InitOption) *Service {
	t.Helper()
	db, err := memorystorage.New()
	require.NoError(t, err)

	return New(db, hasher.New(testHashCost), newTestAuth(t), optionsProto...)
}

func register(t *testing.T, s *Service, email string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Register(ctx, models.CredentialsRequest{Email: email, Password: "secret"}))
	id, err := s.ResolveUserID(ctx, email)
	require.NoError(t, err)
	return id
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		request models.CredentialsRequest
		wantErr error
	}{
		{
			name:    "valid",
			request: models.CredentialsRequest{Email: "a@example.com", Password: "secret"},
		},
		{
			name:    "missing password",
			request: models.CredentialsRequest{Email: "a@example.com"},
			wantErr: ErrValidation,
		},
		{
			name:    "missing email",
			request: models.CredentialsRequest{Password: "secret"},
			wantErr: ErrValidation,
		},
		{
			name:    "malformed email",
			request: models.CredentialsRequest{Email: "not-an-email", Password: "secret"},
			wantErr: ErrValidation,
		},
		{
			name:    "password longer than bcrypt accepts",
			request: models.CredentialsRequest{Email: "a@example.com", Password: string(make([]byte, 73))},
			wantErr: ErrPasswordHashing,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newTestService(t)
			err := s.Register(context.Background(), test.request)
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegister_StoresHashNotPassword(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	s := New(db, hasher.New(testHashCost), newTestAuth(t))

	require.NoError(t, s.Register(context.Background(), models.CredentialsRequest{Email: "a@example.com", Password: "secret"}))

	usr, err := db.GetUserByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", usr.Password)
	assert.True(t, hasher.New(testHashCost).Verify("secret", usr.Password))
}

func TestRegister_Duplicate(t *testing.T) {
	s := newTestService(t)
	request := models.CredentialsRequest{Email: "a@example.com", Password: "secret"}

	require.NoError(t, s.Register(context.Background(), request))
	assert.ErrorIs(t, s.Register(context.Background(), request), ErrUserAlreadyExists)
}

func TestRegister_MisconfiguredHasher(t *testing.T) {
	db, err := memorystorage.New()
	require.NoError(t, err)
	s := New(db, hasher.New(40), newTestAuth(t))

	err = s.Register(context.Background(), models.CredentialsRequest{Email: "a@example.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrPasswordHashing)
	assert.ErrorIs(t, err, hasher.ErrConfiguration)
}

func TestLogin(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Register(context.Background(), models.CredentialsRequest{Email: "a@example.com", Password: "secret"}))

	t.Run("valid credentials yield a token for the email", func(t *testing.T) {
		token, expiresAt, err := s.Login(context.Background(), models.CredentialsRequest{Email: "a@example.com", Password: "secret"})
		require.NoError(t, err)
		assert.True(t, expiresAt.After(time.Now()))

		claims, err := newTestAuth(t).VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", claims.Email)
	})

	tests := []struct {
		name    string
		request models.CredentialsRequest
		wantErr error
	}{
		{"wrong password", models.CredentialsRequest{Email: "a@example.com", Password: "nope"}, ErrWrongPassword},
		{"unknown email", models.CredentialsRequest{Email: "b@example.com", Password: "secret"}, ErrUserNotFound},
		{"empty password", models.CredentialsRequest{Email: "a@example.com"}, ErrValidation},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := s.Login(context.Background(), test.request)
			assert.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestLogin_MissingPasswordHash(t *testing.T) {
	storageMock := &mockstorage.StorageMock{}
	storageMock.On("GetUserByEmail", mock.Anything, "a@example.com").
		Return(&models.User{ID: "u-1", Email: "a@example.com"}, nil)
	s := New(storageMock, hasher.New(testHashCost), newTestAuth(t))

	_, _, err := s.Login(context.Background(), models.CredentialsRequest{Email: "a@example.com", Password: "secret"})
	assert.ErrorIs(t, err, ErrMissingPasswordHash)
}

func TestResolveUserID(t *testing.T) {
	cache := newMapCache()
	s := newTestService(t, WithUserCache(cache))
	aliceID := register(t, s, "alice@example.com")

	id, err := s.ResolveUserID(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, aliceID, id)
	assert.Positive(t, cache.hits)

	_, err = s.ResolveUserID(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrUnknownRequester)

	_, err = s.ResolveUserID(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownRequester)
}

func TestResolveUserID_CacheMissFallsBackToStorage(t *testing.T) {
	storageMock := &mockstorage.StorageMock{}
	storageMock.On("GetUserByEmail", mock.Anything, "a@example.com").
		Return(&models.User{ID: "u-1", Email: "a@example.com", Password: "h"}, nil).
		Once()
	cache := newMapCache()
	s := New(storageMock, hasher.New(testHashCost), newTestAuth(t), WithUserCache(cache))

	for i := 0; i < 3; i++ {
		id, err := s.ResolveUserID(context.Background(), "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-1", id)
	}
	storageMock.AssertNumberOfCalls(t, "GetUserByEmail", 1)
}

func TestListTodos_Visibility(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	aliceID := register(t, s, "alice@example.com")
	bobID := register(t, s, "bob@example.com")

	_, err := s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "alice private"})
	require.NoError(t, err)
	_, err = s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "alice public", IsPublic: true})
	require.NoError(t, err)
	_, err = s.AddTodo(ctx, "bob@example.com", models.AddTodoRequest{Title: "bob private", UserID: bobID})
	require.NoError(t, err)

	aliceView, err := s.ListTodos(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, aliceView.UserData, 2)
	for _, todo := range aliceView.UserData {
		assert.Equal(t, aliceID, todo.UserID)
	}
	assert.Empty(t, aliceView.PublicData)

	bobView, err := s.ListTodos(ctx, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, bobView.UserData, 1)
	assert.Equal(t, "bob private", bobView.UserData[0].Title)
	require.Len(t, bobView.PublicData, 1)
	assert.Equal(t, "alice public", bobView.PublicData[0].Title)
	assert.True(t, bobView.PublicData[0].IsPublic)
}

func TestListTodos_EmptyListsAreNotNil(t *testing.T) {
	s := newTestService(t)
	register(t, s, "alice@example.com")

	list, err := s.ListTodos(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, list.UserData)
	assert.NotNil(t, list.PublicData)
}

func TestListTodos_StorageError(t *testing.T) {
	storageErr := errors.New("storage down")
	storageMock := &mockstorage.StorageMock{}
	storageMock.On("GetUserByEmail", mock.Anything, "a@example.com").
		Return(&models.User{ID: "u-1", Email: "a@example.com", Password: "h"}, nil)
	storageMock.On("GetTodosByOwner", mock.Anything, "u-1").Return(nil, storageErr)
	s := New(storageMock, hasher.New(testHashCost), newTestAuth(t))

	_, err := s.ListTodos(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, storageErr)
}

func TestAddTodo_Strict(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	aliceID := register(t, s, "alice@example.com")
	bobID := register(t, s, "bob@example.com")

	todo, err := s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "t", Description: "d"})
	require.NoError(t, err)
	assert.NotEmpty(t, todo.ID)
	assert.Equal(t, aliceID, todo.UserID)
	assert.False(t, todo.Completed)
	assert.False(t, todo.IsPublic)

	todo, err = s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "t", UserID: aliceID})
	require.NoError(t, err)
	assert.Equal(t, aliceID, todo.UserID)

	_, err = s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "t", UserID: bobID})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.AddTodo(ctx, "ghost@example.com", models.AddTodoRequest{Title: "t"})
	assert.ErrorIs(t, err, ErrUnknownRequester)
}

func TestAddTodo_Permissive(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, WithOwnershipChecks(false))
	bobID := register(t, s, "bob@example.com")

	todo, err := s.AddTodo(ctx, "", models.AddTodoRequest{Title: "t", UserID: bobID})
	require.NoError(t, err)
	assert.Equal(t, bobID, todo.UserID)

	todo, err = s.AddTodo(ctx, "", models.AddTodoRequest{Title: "orphan", UserID: "no-such-user"})
	require.NoError(t, err)
	assert.Equal(t, "no-such-user", todo.UserID)

	_, err = s.AddTodo(ctx, "", models.AddTodoRequest{Title: "t"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddTodo_InvalidReferenceIsValidationError(t *testing.T) {
	storageMock := &mockstorage.StorageMock{}
	storageMock.On("CreateTodo", mock.Anything, mock.AnythingOfType("*models.Todo")).
		Return("", models.ErrInvalidReference)
	s := New(storageMock, hasher.New(testHashCost), newTestAuth(t), WithOwnershipChecks(false))

	_, err := s.AddTodo(context.Background(), "", models.AddTodoRequest{Title: "t", UserID: "bad"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateTodo(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	aliceID := register(t, s, "alice@example.com")
	register(t, s, "bob@example.com")

	todo, err := s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "t"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateTodo(ctx, "alice@example.com", todo.ID, models.TodoPatch{
		Completed: boolPtr(true),
		IsPublic:  boolPtr(true),
	}))

	list, err := s.ListTodos(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, list.UserData, 1)
	assert.Equal(t, "t", list.UserData[0].Title)
	assert.True(t, list.UserData[0].Completed)
	assert.True(t, list.UserData[0].IsPublic)
	assert.Equal(t, aliceID, list.UserData[0].UserID)

	err = s.UpdateTodo(ctx, "bob@example.com", todo.ID, models.TodoPatch{Title: strPtr("stolen")})
	assert.ErrorIs(t, err, ErrForbidden)

	err = s.UpdateTodo(ctx, "alice@example.com", "missing", models.TodoPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrTodoNotFound)

	err = s.UpdateTodo(ctx, "alice@example.com", todo.ID, models.TodoPatch{Title: strPtr("")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateTodo_PermissiveAllowsAnyRequester(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, WithOwnershipChecks(false))
	aliceID := register(t, s, "alice@example.com")
	register(t, s, "bob@example.com")

	todo, err := s.AddTodo(ctx, "", models.AddTodoRequest{Title: "t", UserID: aliceID})
	require.NoError(t, err)

	require.NoError(t, s.UpdateTodo(ctx, "bob@example.com", todo.ID, models.TodoPatch{Title: strPtr("renamed")}))
	assert.ErrorIs(t, s.UpdateTodo(ctx, "bob@example.com", "missing", models.TodoPatch{}), ErrTodoNotFound)
}

func TestDeleteTodo(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	register(t, s, "alice@example.com")
	register(t, s, "bob@example.com")

	todo, err := s.AddTodo(ctx, "alice@example.com", models.AddTodoRequest{Title: "t"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteTodo(ctx, "bob@example.com", todo.ID), ErrForbidden)
	require.NoError(t, s.DeleteTodo(ctx, "alice@example.com", todo.ID))
	assert.ErrorIs(t, s.DeleteTodo(ctx, "alice@example.com", todo.ID), ErrTodoNotFound)
}

func TestGetInternalStats(t *testing.T) {
	storageMock := &mockstorage.StorageMock{
		OnGetNumberOfUsers: func(ctx context.Context) (int64, error) { return 2, nil },
		OnGetNumberOfTodos: func(ctx context.Context) (int64, error) { return 5, nil },
	}
	s := New(storageMock, hasher.New(testHashCost), newTestAuth(t))

	stats, err := s.GetInternalStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.InternalStatsResponse{Users: 2, Todos: 5}, stats)

	storageMock.OnGetNumberOfTodos = func(ctx context.Context) (int64, error) { return 0, errors.New("boom") }
	_, err = s.GetInternalStats(context.Background())
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	storageMock := &mockstorage.StorageMock{}
	storageMock.On("Ping", mock.Anything).Return(nil).Once()
	storageMock.On("Ping", mock.Anything).Return(errors.New("down")).Once()
	s := New(storageMock, hasher.New(testHashCost), newTestAuth(t))

	assert.NoError(t, s.Ping(context.Background()))
	assert.Error(t, s.Ping(context.Background()))
	storageMock.AssertExpectations(t)
}
