// Package service implements registration, login and the todo access policy
// on top of a storage backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todolist/internal/logger"
	"github.com/patric-chuzhbe/todolist/internal/models"
)

type usersKeeper interface {
	CreateUser(ctx context.Context, usr *models.User) (string, error)

	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type todosKeeper interface {
	CreateTodo(ctx context.Context, todo *models.Todo) (string, error)

	GetTodoByID(ctx context.Context, id string) (*models.Todo, error)

	GetTodosByOwner(ctx context.Context, userID string) ([]models.Todo, error)

	GetPublicTodosExcludingOwner(ctx context.Context, userID string) ([]models.Todo, error)

	UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error

	DeleteTodo(ctx context.Context, id string) error
}

type statsKeeper interface {
	GetNumberOfUsers(ctx context.Context) (int64, error)

	GetNumberOfTodos(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	usersKeeper
	todosKeeper
	statsKeeper
	pinger
}

type passwordHasher interface {
	Hash(password string) (string, error)

	Verify(password, hash string) bool
}

type tokenIssuer interface {
	IssueToken(email string) (string, time.Time, error)
}

type userIDCache interface {
	UserID(email string) (string, bool)

	Remember(email, userID string)
}

var (
	ErrValidation          = errors.New("validation failed")
	ErrPasswordHashing     = errors.New("password could not be hashed")
	ErrWrongPassword       = errors.New("incorrect password")
	ErrMissingPasswordHash = errors.New("user password is missing in the database")
	ErrForbidden           = errors.New("todo belongs to another user")
	ErrUnknownRequester    = errors.New("requester does not resolve to a user")

	ErrUserAlreadyExists = models.ErrUserAlreadyExists
	ErrUserNotFound      = models.ErrUserNotFound
	ErrTodoNotFound      = models.ErrTodoNotFound
)

type Service struct {
	db              storage
	hasher          passwordHasher
	tokens          tokenIssuer
	users           userIDCache
	validate        *validator.Validate
	ownershipChecks bool
}

type initOptions struct {
	users           userIDCache
	ownershipChecks bool
}

type InitOption func(*initOptions)

// WithUserCache puts a read-through cache in front of email to id lookups.
func WithUserCache(cache userIDCache) InitOption {
	return func(options *initOptions) {
		options.users = cache
	}
}

// WithOwnershipChecks switches between strict mode, where only owners may
// create, update or delete their todos, and permissive mode, where any
// authenticated caller may.
func WithOwnershipChecks(value bool) InitOption {
	return func(options *initOptions) {
		options.ownershipChecks = value
	}
}

func New(
	db storage,
	hasher passwordHasher,
	tokens tokenIssuer,
	optionsProto ...InitOption,
) *Service {
	options := &initOptions{
		ownershipChecks: true,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	return &Service{
		db:              db,
		hasher:          hasher,
		tokens:          tokens,
		users:           options.users,
		validate:        validator.New(),
		ownershipChecks: options.ownershipChecks,
	}
}

// OwnershipChecks reports whether the service runs in strict mode.
func (s *Service) OwnershipChecks() bool {
	return s.ownershipChecks
}

func (s *Service) validationError(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// Register stores a new user with a bcrypt hash of the password.
func (s *Service) Register(ctx context.Context, request models.CredentialsRequest) error {
	if err := s.validate.Struct(request); err != nil {
		return s.validationError(err)
	}

	hash, err := s.hasher.Hash(request.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordHashing, err)
	}

	userID, err := s.db.CreateUser(ctx, &models.User{Email: request.Email, Password: hash})
	if err != nil {
		return err
	}

	if s.users != nil {
		s.users.Remember(request.Email, userID)
	}

	return nil
}

// Login checks the credentials and issues a token carrying the email claim.
func (s *Service) Login(ctx context.Context, request models.CredentialsRequest) (string, time.Time, error) {
	if request.Email == "" || request.Password == "" {
		return "", time.Time{}, s.validationError(errors.New("email and password are required"))
	}

	usr, err := s.db.GetUserByEmail(ctx, request.Email)
	if err != nil {
		return "", time.Time{}, err
	}

	if usr.Password == "" {
		return "", time.Time{}, ErrMissingPasswordHash
	}

	if !s.hasher.Verify(request.Password, usr.Password) {
		return "", time.Time{}, ErrWrongPassword
	}

	if s.users != nil {
		s.users.Remember(usr.Email, usr.ID)
	}

	return s.tokens.IssueToken(usr.Email)
}

// ResolveUserID maps the email claim of a verified token to a user id.
// A token whose user no longer resolves yields ErrUnknownRequester.
func (s *Service) ResolveUserID(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", ErrUnknownRequester
	}

	if s.users != nil {
		if userID, found := s.users.UserID(email); found {
			return userID, nil
		}
	}

	usr, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", ErrUnknownRequester
		}
		return "", err
	}

	if s.users != nil {
		s.users.Remember(email, usr.ID)
	}

	return usr.ID, nil
}

// AddTodo creates a todo. In strict mode the owner is the requester: an empty
// userId is filled in and a foreign one is rejected with ErrForbidden. In
// permissive mode requesterEmail is ignored and userId is required.
func (s *Service) AddTodo(ctx context.Context, requesterEmail string, request models.AddTodoRequest) (*models.Todo, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, s.validationError(err)
	}

	ownerID := request.UserID
	if s.ownershipChecks {
		requesterID, err := s.ResolveUserID(ctx, requesterEmail)
		if err != nil {
			return nil, err
		}
		if ownerID == "" {
			ownerID = requesterID
		} else if ownerID != requesterID {
			return nil, ErrForbidden
		}
	} else if ownerID == "" {
		return nil, s.validationError(errors.New("userId is required"))
	}

	todo := &models.Todo{
		Title:       request.Title,
		Description: request.Description,
		Completed:   request.Completed,
		IsPublic:    request.IsPublic,
		UserID:      ownerID,
	}

	todoID, err := s.db.CreateTodo(ctx, todo)
	if err != nil {
		if errors.Is(err, models.ErrInvalidReference) {
			return nil, s.validationError(err)
		}
		return nil, err
	}
	todo.ID = todoID

	return todo, nil
}

// ListTodos returns the requester's own todos and everybody else's public ones.
// Private todos of other users are never part of the result.
func (s *Service) ListTodos(ctx context.Context, requesterEmail string) (*models.TodoList, error) {
	requesterID, err := s.ResolveUserID(ctx, requesterEmail)
	if err != nil {
		return nil, err
	}

	own, err := s.db.GetTodosByOwner(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	public, err := s.db.GetPublicTodosExcludingOwner(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	if own == nil {
		own = []models.Todo{}
	}
	if public == nil {
		public = []models.Todo{}
	}

	return &models.TodoList{UserData: own, PublicData: public}, nil
}

// UpdateTodo applies patch to the todo with the given id.
func (s *Service) UpdateTodo(ctx context.Context, requesterEmail, todoID string, patch models.TodoPatch) error {
	if err := s.validate.Struct(patch); err != nil {
		return s.validationError(err)
	}

	if err := s.authorizeMutation(ctx, requesterEmail, todoID); err != nil {
		return err
	}

	return s.db.UpdateTodo(ctx, todoID, patch)
}

func (s *Service) DeleteTodo(ctx context.Context, requesterEmail, todoID string) error {
	if err := s.authorizeMutation(ctx, requesterEmail, todoID); err != nil {
		return err
	}

	return s.db.DeleteTodo(ctx, todoID)
}

func (s *Service) authorizeMutation(ctx context.Context, requesterEmail, todoID string) error {
	if !s.ownershipChecks {
		return nil
	}

	requesterID, err := s.ResolveUserID(ctx, requesterEmail)
	if err != nil {
		return err
	}

	todo, err := s.db.GetTodoByID(ctx, todoID)
	if err != nil {
		return err
	}

	if todo.UserID != requesterID {
		logger.Log.Debugln(
			"Ownership check failed: ",
			zap.String("todoID", todoID),
			zap.String("ownerID", todo.UserID),
			zap.String("requesterID", requesterID),
		)
		return ErrForbidden
	}

	return nil
}

// GetInternalStats returns the number of registered users and stored todos.
func (s *Service) GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error) {
	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	todos, err := s.db.GetNumberOfTodos(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, err
	}

	return models.InternalStatsResponse{
		Users: users,
		Todos: todos,
	}, nil
}

// Ping checks the health of the database/storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
