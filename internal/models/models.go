// Package models holds the data types shared by the storage, service and
// router layers: users, todos, request/response payloads and the storage-level
// sentinel errors.
package models

import "errors"

// User is a registered account. Password holds the bcrypt hash, never the plaintext.
type User struct {
	ID       string `json:"_id"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// Todo is a single task owned by a user.
type Todo struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	IsPublic    bool   `json:"isPublic"`
	UserID      string `json:"userId"`
}

// TodoPatch carries the fields of a partial todo update. Nil fields are left untouched.
type TodoPatch struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TodoPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil && p.IsPublic == nil
}

// Apply copies the non-nil patch fields onto todo.
func (p TodoPatch) Apply(todo *Todo) {
	if p.Title != nil {
		todo.Title = *p.Title
	}
	if p.Description != nil {
		todo.Description = *p.Description
	}
	if p.Completed != nil {
		todo.Completed = *p.Completed
	}
	if p.IsPublic != nil {
		todo.IsPublic = *p.IsPublic
	}
}

type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AddTodoRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	IsPublic    bool   `json:"isPublic"`
	UserID      string `json:"userId"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type LoginResponse struct {
	Msg   string `json:"msg"`
	Token string `json:"token"`
}

type AddTodoResponse struct {
	Msg  string `json:"msg"`
	Todo *Todo  `json:"todo"`
}

// TodoList is the listing returned to an authenticated requester: their own
// todos and the public todos of everybody else.
type TodoList struct {
	UserData   []Todo `json:"userdata"`
	PublicData []Todo `json:"publicData"`
}

type InternalStatsResponse struct {
	Users int64 `json:"users"`
	Todos int64 `json:"todos"`
}

const (
	StorageTypeUnknown = iota
	StorageTypeMongo
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrTodoNotFound      = errors.New("todo not found")

	// ErrInvalidReference is returned when a user id cannot be represented by the backend.
	ErrInvalidReference = errors.New("invalid user reference")
)
