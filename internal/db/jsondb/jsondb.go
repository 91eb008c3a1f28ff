// Package jsondb is a storage backend that keeps users and todos in memory
// and persists them to a JSON file on Flush and Close. Email uniqueness is enforced
// under the store lock.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/todolist/internal/models"
)

// JSONDB is the file-backed store. The zero value is not usable; see New.
type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// UserRecord is how a user is written to the file. Unlike models.User it
// keeps the password hash.
type UserRecord struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func newUserRecord(usr models.User) UserRecord {
	return UserRecord{ID: usr.ID, Email: usr.Email, Password: usr.Password}
}

func (r UserRecord) toUser() *models.User {
	return &models.User{ID: r.ID, Email: r.Email, Password: r.Password}
}

// CacheStruct is the on-disk layout of the store.
type CacheStruct struct {
	Users          map[string]UserRecord
	UserIDsByEmail map[string]string
	Todos          map[string]models.Todo

	// TodoOrder keeps todo ids in insertion order so listings are stable.
	TodoOrder []string
}

// NewCache returns an empty, ready to use cache.
func NewCache() CacheStruct {
	return CacheStruct{
		Users:          map[string]UserRecord{},
		UserIDsByEmail: map[string]string{},
		Todos:          map[string]models.Todo{},
		TodoOrder:      []string{},
	}
}

// New opens fileName, creating it if it does not exist.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		Cache:    NewCache(),
	}

	err := parseJSONFile(fileName, &db.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `parseJSONFile()` calling: %w", err)
		}
		if err := writeToJSONFile(fileName, db.Cache); err != nil {
			return nil, err
		}
	}
	db.Cache.fillMissing()

	return db, nil
}

// NewInMemory returns a store that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{Cache: NewCache()}
}

func (c *CacheStruct) fillMissing() {
	if c.Users == nil {
		c.Users = map[string]UserRecord{}
	}
	if c.UserIDsByEmail == nil {
		c.UserIDsByEmail = map[string]string{}
	}
	if c.Todos == nil {
		c.Todos = map[string]models.Todo{}
	}
	if c.TodoOrder == nil {
		c.TodoOrder = []string{}
	}
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	if err := os.WriteFile(fileName, jsonData, 0644); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

// CreateUser stores usr under a fresh id and returns the id.
func (db *JSONDB) CreateUser(ctx context.Context, usr *models.User) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Cache.UserIDsByEmail[usr.Email]; exists {
		return "", models.ErrUserAlreadyExists
	}

	id := uuid.New().String()
	db.Cache.Users[id] = newUserRecord(models.User{ID: id, Email: usr.Email, Password: usr.Password})
	db.Cache.UserIDsByEmail[usr.Email] = id

	return id, nil
}

func (db *JSONDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, found := db.Cache.UserIDsByEmail[email]
	if !found {
		return nil, models.ErrUserNotFound
	}

	return db.Cache.Users[id].toUser(), nil
}

// CreateTodo stores todo under a fresh id. The owner reference is not checked.
func (db *JSONDB) CreateTodo(ctx context.Context, todo *models.Todo) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *todo
	stored.ID = uuid.New().String()
	db.Cache.Todos[stored.ID] = stored
	db.Cache.TodoOrder = append(db.Cache.TodoOrder, stored.ID)

	return stored.ID, nil
}

func (db *JSONDB) GetTodoByID(ctx context.Context, id string) (*models.Todo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	todo, found := db.Cache.Todos[id]
	if !found {
		return nil, models.ErrTodoNotFound
	}

	return &todo, nil
}

// GetTodosByOwner returns every todo owned by userID, private and public alike.
func (db *JSONDB) GetTodosByOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	return db.filterTodos(func(todo models.Todo) bool {
		return todo.UserID == userID
	}), nil
}

// GetPublicTodosExcludingOwner returns the public todos of everyone but userID.
func (db *JSONDB) GetPublicTodosExcludingOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	return db.filterTodos(func(todo models.Todo) bool {
		return todo.IsPublic && todo.UserID != userID
	}), nil
}

func (db *JSONDB) filterTodos(predicate func(models.Todo) bool) []models.Todo {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ordered := make([]models.Todo, 0, len(db.Cache.TodoOrder))
	for _, id := range db.Cache.TodoOrder {
		ordered = append(ordered, db.Cache.Todos[id])
	}

	return funk.Filter(ordered, predicate).([]models.Todo)
}

func (db *JSONDB) UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	todo, found := db.Cache.Todos[id]
	if !found {
		return models.ErrTodoNotFound
	}
	patch.Apply(&todo)
	db.Cache.Todos[id] = todo

	return nil
}

func (db *JSONDB) DeleteTodo(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, found := db.Cache.Todos[id]; !found {
		return models.ErrTodoNotFound
	}
	delete(db.Cache.Todos, id)
	db.Cache.TodoOrder = funk.FilterString(db.Cache.TodoOrder, func(todoID string) bool {
		return todoID != id
	})

	return nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

func (db *JSONDB) GetNumberOfTodos(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Todos)), nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Flush writes the current state to the file. In-memory stores have nothing to write.
func (db *JSONDB) Flush() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	if err := writeToJSONFile(db.fileName, db.Cache); err != nil {
		return fmt.Errorf("in internal/db/jsondb/jsondb.go/Flush(): error while `writeToJSONFile()` calling: %w", err)
	}

	return nil
}

// Close persists the store.
func (db *JSONDB) Close() error {
	return db.Flush()
}
