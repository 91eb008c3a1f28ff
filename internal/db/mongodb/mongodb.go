// Package mongodb is the document store backend. Users and todos live in
// two collections; email uniqueness is guaranteed by a unique index.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/patric-chuzhbe/todolist/internal/models"
)

const (
	usersCollection = "users"
	todosCollection = "todos"
)

type userDocument struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Email    string             `bson:"email"`
	Password string             `bson:"password"`
}

type todoDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"title"`
	Description string             `bson:"description,omitempty"`
	Completed   bool               `bson:"completed"`
	IsPublic    bool               `bson:"isPublic"`
	UserID      primitive.ObjectID `bson:"userId"`
}

type MongoDB struct {
	client            *mongo.Client
	users             *mongo.Collection
	todos             *mongo.Collection
	connectionTimeout time.Duration
}

type initOptions struct {
	DropOnStart bool
}

type InitOption func(*initOptions)

// WithDropOnStart drops the database before the indexes are created. Used by integration tests.
func WithDropOnStart(value bool) InitOption {
	return func(options *initOptions) {
		options.DropOnStart = value
	}
}

// New connects to uri, verifies the connection and ensures the indexes exist.
func New(
	ctx context.Context,
	uri string,
	databaseName string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*MongoDB, error) {
	opts := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(opts)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	client, err := mongo.Connect(ctxWithTimeout, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `mongo.Connect()` calling: %w", err)
	}

	database := client.Database(databaseName)
	result := &MongoDB{
		client:            client,
		users:             database.Collection(usersCollection),
		todos:             database.Collection(todosCollection),
		connectionTimeout: connectionTimeout,
	}

	if err := client.Ping(ctxWithTimeout, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `client.Ping()` calling: %w", err)
	}

	if opts.DropOnStart {
		if err := database.Drop(ctxWithTimeout); err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `database.Drop()` calling: %w", err)
		}
	}

	if err := result.ensureIndexes(ctxWithTimeout); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return result, nil
}

func (db *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/ensureIndexes(): error while `users.Indexes().CreateOne()` calling: %w", err)
	}

	_, err = db.todos.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}},
		{Keys: bson.D{{Key: "isPublic", Value: 1}, {Key: "userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/ensureIndexes(): error while `todos.Indexes().CreateMany()` calling: %w", err)
	}

	return nil
}

func (db *MongoDB) CreateUser(ctx context.Context, usr *models.User) (string, error) {
	res, err := db.users.InsertOne(ctx, userDocument{Email: usr.Email, Password: usr.Password})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", models.ErrUserAlreadyExists
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return insertedID(res)
}

func (db *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc userDocument
	err := db.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &models.User{ID: doc.ID.Hex(), Email: doc.Email, Password: doc.Password}, nil
}

// CreateTodo stores todo. The owner reference must be an ObjectID hex string
// but the user it points at does not have to exist.
func (db *MongoDB) CreateTodo(ctx context.Context, todo *models.Todo) (string, error) {
	doc, err := toTodoDocument(todo)
	if err != nil {
		return "", err
	}

	res, err := db.todos.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	return insertedID(res)
}

func (db *MongoDB) GetTodoByID(ctx context.Context, id string) (*models.Todo, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrTodoNotFound
	}

	var doc todoDocument
	err = db.todos.FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrTodoNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return fromTodoDocument(doc), nil
}

func (db *MongoDB) GetTodosByOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	filter, err := ownerFilter(userID)
	if err != nil {
		return nil, err
	}

	return db.findTodos(ctx, filter)
}

func (db *MongoDB) GetPublicTodosExcludingOwner(ctx context.Context, userID string) ([]models.Todo, error) {
	filter, err := publicExcludingOwnerFilter(userID)
	if err != nil {
		return nil, err
	}

	return db.findTodos(ctx, filter)
}

func (db *MongoDB) findTodos(ctx context.Context, filter bson.M) ([]models.Todo, error) {
	cursor, err := db.todos.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	var docs []todoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	result := make([]models.Todo, 0, len(docs))
	for _, doc := range docs {
		result = append(result, *fromTodoDocument(doc))
	}

	return result, nil
}

func (db *MongoDB) UpdateTodo(ctx context.Context, id string, patch models.TodoPatch) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrTodoNotFound
	}

	set := patchToSet(patch)
	if len(set) == 0 {
		_, err := db.GetTodoByID(ctx, id)
		return err
	}

	res, err := db.todos.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrTodoNotFound
	}

	return nil
}

func (db *MongoDB) DeleteTodo(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrTodoNotFound
	}

	res, err := db.todos.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrTodoNotFound
	}

	return nil
}

func (db *MongoDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.users.CountDocuments(ctx, bson.D{})
}

func (db *MongoDB) GetNumberOfTodos(ctx context.Context) (int64, error) {
	return db.todos.CountDocuments(ctx, bson.D{})
}

func (db *MongoDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.client.Ping(ctxWithTimeout, readpref.Primary())
}

func (db *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), db.connectionTimeout)
	defer cancel()

	return db.client.Disconnect(ctx)
}

func insertedID(res *mongo.InsertOneResult) (string, error) {
	objectID, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("db error: unexpected inserted id type %T", res.InsertedID)
	}

	return objectID.Hex(), nil
}

func toTodoDocument(todo *models.Todo) (todoDocument, error) {
	userID, err := primitive.ObjectIDFromHex(todo.UserID)
	if err != nil {
		return todoDocument{}, models.ErrInvalidReference
	}

	return todoDocument{
		Title:       todo.Title,
		Description: todo.Description,
		Completed:   todo.Completed,
		IsPublic:    todo.IsPublic,
		UserID:      userID,
	}, nil
}

func fromTodoDocument(doc todoDocument) *models.Todo {
	return &models.Todo{
		ID:          doc.ID.Hex(),
		Title:       doc.Title,
		Description: doc.Description,
		Completed:   doc.Completed,
		IsPublic:    doc.IsPublic,
		UserID:      doc.UserID.Hex(),
	}
}

func ownerFilter(userID string) (bson.M, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, models.ErrInvalidReference
	}

	return bson.M{"userId": objectID}, nil
}

func publicExcludingOwnerFilter(userID string) (bson.M, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, models.ErrInvalidReference
	}

	return bson.M{
		"isPublic": true,
		"userId":   bson.M{"$ne": objectID},
	}, nil
}

func patchToSet(patch models.TodoPatch) bson.M {
	set := bson.M{}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}
	if patch.IsPublic != nil {
		set["isPublic"] = *patch.IsPublic
	}

	return set
}
