// Package logger provides structured logging for the service using the Uber
// zap library, plus an HTTP middleware that logs every handled request.
package logger

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global SugaredLogger. It discards everything until Init is called.
var Log = zap.NewNop().Sugar()

type initOptions struct {
	core zapcore.Core
}

type InitOption func(*initOptions)

// WithCore replaces the console output with core. Tests use it with zaptest/observer.
func WithCore(core zapcore.Core) InitOption {
	return func(options *initOptions) {
		options.core = core
	}
}

// Init builds the global logger at the given level ("debug", "info", ...).
func Init(level string, optionsProto ...InitOption) error {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	if options.core != nil {
		core, err := zapcore.NewIncreaseLevelCore(options.core, lvl)
		if err != nil {
			return err
		}
		Log = zap.New(core).Sugar()
		return nil
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = zl.Sugar()

	return nil
}

// Sync flushes buffered log entries. Call it on shutdown.
func Sync() error {
	if err := Log.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}

	return nil
}

type requestRecord struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *requestRecord) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	size, err := r.ResponseWriter.Write(b)
	r.size += size
	return size, err
}

func (r *requestRecord) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	if r.status == 0 {
		r.status = statusCode
	}
}

// WithLoggingHTTPMiddleware logs one entry per request with its id (when
// chi's RequestID middleware runs first), method, URI, client address,
// status, duration and response size.
func WithLoggingHTTPMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		record := &requestRecord{ResponseWriter: w}

		h.ServeHTTP(record, r)

		if record.status == 0 {
			record.status = http.StatusOK
		}

		Log.Infow(
			"request handled",
			"requestId", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"uri", r.RequestURI,
			"remote", r.RemoteAddr,
			"status", record.status,
			"duration", time.Since(start),
			"size", record.size,
		)
	})
}
