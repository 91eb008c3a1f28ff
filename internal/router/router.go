// Package router exposes the todolist HTTP API. It is the only layer that
// turns service errors into HTTP statuses and JSON bodies.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todolist/internal/auth"
	"github.com/patric-chuzhbe/todolist/internal/gzippedhttp"
	"github.com/patric-chuzhbe/todolist/internal/hasher"
	"github.com/patric-chuzhbe/todolist/internal/logger"
	"github.com/patric-chuzhbe/todolist/internal/models"
	"github.com/patric-chuzhbe/todolist/internal/service"
)

type accountsService interface {
	Register(ctx context.Context, request models.CredentialsRequest) error

	Login(ctx context.Context, request models.CredentialsRequest) (string, time.Time, error)
}

type todosService interface {
	AddTodo(ctx context.Context, requesterEmail string, request models.AddTodoRequest) (*models.Todo, error)

	ListTodos(ctx context.Context, requesterEmail string) (*models.TodoList, error)

	UpdateTodo(ctx context.Context, requesterEmail, todoID string, patch models.TodoPatch) error

	DeleteTodo(ctx context.Context, requesterEmail, todoID string) error

	OwnershipChecks() bool
}

type operationsService interface {
	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)

	Ping(ctx context.Context) error
}

type todolistService interface {
	accountsService
	todosService
	operationsService
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler

	SetAuthCookie(response http.ResponseWriter, tokenString string, expiresAt time.Time)
}

type subnetGuard interface {
	TrustedOnly(h http.Handler) http.Handler
}

type Router struct {
	service    todolistService
	auth       authenticator
	guard      subnetGuard
	enableGzip bool
}

type initOptions struct {
	enableGzip bool
}

type InitOption func(*initOptions)

// WithGzip enables gzip request decoding and response compression.
func WithGzip(value bool) InitOption {
	return func(options *initOptions) {
		options.enableGzip = value
	}
}

func New(
	theService todolistService,
	theAuth authenticator,
	guard subnetGuard,
	optionsProto ...InitOption,
) *Router {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	return &Router{
		service:    theService,
		auth:       theAuth,
		guard:      guard,
		enableGzip: options.enableGzip,
	}
}

// Handler builds the chi mux with every route of the API.
func (router *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, logger.WithLoggingHTTPMiddleware)
	if router.enableGzip {
		mux.Use(gzippedhttp.UngzipRequest, gzippedhttp.GzipResponse)
	}

	mux.Get(`/`, router.GetRoot)
	mux.Get(`/ping`, router.GetPing)

	mux.Post(`/users/register`, router.PostUsersregister)
	mux.Post(`/users/login`, router.PostUserslogin)

	if router.service.OwnershipChecks() {
		mux.With(router.auth.AuthenticateUser).Post(`/todos/add`, router.PostTodosadd)
	} else {
		mux.Post(`/todos/add`, router.PostTodosadd)
	}
	mux.With(router.auth.AuthenticateUser).Get(`/todos`, router.GetTodos)
	mux.With(router.auth.AuthenticateUser).Put(`/todos/{id}`, router.PutTodo)
	mux.With(router.auth.AuthenticateUser).Delete(`/todos/{id}`, router.DeleteTodo)

	mux.With(router.guard.TrustedOnly).Get(`/api/internal/stats`, router.GetApiinternalstats)

	return mux
}

func writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder().Encode()`: ", zap.Error(err))
	}
}

func writeMsg(response http.ResponseWriter, status int, msg string) {
	writeJSON(response, status, models.MessageResponse{Msg: msg})
}

func writeError(response http.ResponseWriter, status int, msg string) {
	writeJSON(response, status, models.ErrorResponse{Error: msg})
}

func decodeJSON(request *http.Request, target interface{}) error {
	return json.NewDecoder(request.Body).Decode(target)
}

func requesterEmail(request *http.Request) string {
	email, _ := auth.EmailFromContext(request.Context())
	return email
}

func (router *Router) GetRoot(response http.ResponseWriter, request *http.Request) {
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(response, "Hello welcome !")
}

func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.service.Ping(request.Context()); err != nil {
		logger.Log.Debugln("Error calling the `router.service.Ping()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (router *Router) PostUsersregister(response http.ResponseWriter, request *http.Request) {
	var credentials models.CredentialsRequest
	if err := decodeJSON(request, &credentials); err != nil {
		logger.Log.Debugln("Error calling the `decodeJSON()`: ", zap.Error(err))
		writeMsg(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := router.service.Register(request.Context(), credentials)
	switch {
	case err == nil:
		writeMsg(response, http.StatusCreated, "User registered successfully")
	case errors.Is(err, service.ErrValidation):
		writeMsg(response, http.StatusBadRequest, "A valid email and a password are required")
	case errors.Is(err, service.ErrUserAlreadyExists):
		writeMsg(response, http.StatusBadRequest, "User already exists")
	case errors.Is(err, hasher.ErrConfiguration):
		logger.Log.Errorln("Password hasher is misconfigured: ", zap.Error(err))
		writeMsg(response, http.StatusInternalServerError, "Internal server error")
	case errors.Is(err, service.ErrPasswordHashing):
		writeMsg(response, http.StatusBadRequest, "Password could not be hashed")
	default:
		logger.Log.Debugln("Error calling the `router.service.Register()`: ", zap.Error(err))
		writeMsg(response, http.StatusInternalServerError, "Internal server error")
	}
}

func (router *Router) PostUserslogin(response http.ResponseWriter, request *http.Request) {
	var credentials models.CredentialsRequest
	if err := decodeJSON(request, &credentials); err != nil {
		logger.Log.Debugln("Error calling the `decodeJSON()`: ", zap.Error(err))
		writeMsg(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, expiresAt, err := router.service.Login(request.Context(), credentials)
	switch {
	case err == nil:
		router.auth.SetAuthCookie(response, token, expiresAt)
		writeJSON(response, http.StatusOK, models.LoginResponse{Msg: "Login successful", Token: token})
	case errors.Is(err, service.ErrValidation):
		writeMsg(response, http.StatusBadRequest, "Email and password are required")
	case errors.Is(err, service.ErrUserNotFound):
		writeMsg(response, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrWrongPassword):
		writeMsg(response, http.StatusUnauthorized, "Incorrect password")
	case errors.Is(err, service.ErrMissingPasswordHash):
		writeMsg(response, http.StatusInternalServerError, "User password is missing in the database")
	default:
		logger.Log.Debugln("Error calling the `router.service.Login()`: ", zap.Error(err))
		writeMsg(response, http.StatusInternalServerError, "Internal server error")
	}
}

func (router *Router) PostTodosadd(response http.ResponseWriter, request *http.Request) {
	var todoRequest models.AddTodoRequest
	if err := decodeJSON(request, &todoRequest); err != nil {
		logger.Log.Debugln("Error calling the `decodeJSON()`: ", zap.Error(err))
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	todo, err := router.service.AddTodo(request.Context(), requesterEmail(request), todoRequest)
	switch {
	case err == nil:
		writeJSON(response, http.StatusCreated, models.AddTodoResponse{Msg: "Todo added successfully", Todo: todo})
	case errors.Is(err, service.ErrValidation):
		writeError(response, http.StatusBadRequest, "Title and a valid userId are required")
	case errors.Is(err, service.ErrUnknownRequester):
		writeError(response, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	case errors.Is(err, service.ErrForbidden):
		writeError(response, http.StatusForbidden, "Todos can only be added for yourself")
	default:
		logger.Log.Debugln("Error calling the `router.service.AddTodo()`: ", zap.Error(err))
		writeError(response, http.StatusNotFound, "Todo could not be saved")
	}
}

func (router *Router) GetTodos(response http.ResponseWriter, request *http.Request) {
	list, err := router.service.ListTodos(request.Context(), requesterEmail(request))
	switch {
	case err == nil:
		writeJSON(response, http.StatusOK, list)
	case errors.Is(err, service.ErrUnknownRequester):
		writeError(response, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	default:
		logger.Log.Debugln("Error calling the `router.service.ListTodos()`: ", zap.Error(err))
		writeError(response, http.StatusNotFound, "Todos could not be loaded")
	}
}

func (router *Router) PutTodo(response http.ResponseWriter, request *http.Request) {
	var patch models.TodoPatch
	if err := decodeJSON(request, &patch); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.Debugln("Error calling the `decodeJSON()`: ", zap.Error(err))
		writeError(response, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := router.service.UpdateTodo(request.Context(), requesterEmail(request), chi.URLParam(request, "id"), patch)
	if err == nil {
		writeMsg(response, http.StatusOK, "Todo details updated")
		return
	}
	if errors.Is(err, service.ErrValidation) {
		writeError(response, http.StatusBadRequest, "Title must not be empty")
		return
	}
	router.writeMutationError(response, "router.service.UpdateTodo()", err)
}

func (router *Router) DeleteTodo(response http.ResponseWriter, request *http.Request) {
	err := router.service.DeleteTodo(request.Context(), requesterEmail(request), chi.URLParam(request, "id"))
	if err == nil {
		writeMsg(response, http.StatusOK, "Todo deleted successfully")
		return
	}
	router.writeMutationError(response, "router.service.DeleteTodo()", err)
}

func (router *Router) writeMutationError(response http.ResponseWriter, call string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownRequester):
		writeError(response, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	case errors.Is(err, service.ErrForbidden):
		writeError(response, http.StatusForbidden, http.StatusText(http.StatusForbidden))
	case errors.Is(err, service.ErrTodoNotFound):
		writeError(response, http.StatusNotFound, "Todo not found")
	default:
		logger.Log.Debugln("Error calling the `"+call+"`: ", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "Internal server error")
	}
}

func (router *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.service.GetInternalStats(request.Context())
	if err != nil {
		logger.Log.Debugln("Error calling the `router.service.GetInternalStats()`: ", zap.Error(err))
		writeError(response, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(response, http.StatusOK, stats)
}
