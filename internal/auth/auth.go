// Package auth issues and verifies the signed bearer tokens handed out at
// login and provides the HTTP middleware that guards protected routes.
// Tokens are read from the auth cookie or from an Authorization header.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/todolist/internal/logger"
	"github.com/patric-chuzhbe/todolist/internal/models"
)

// DefaultTokenTTL is the validity window of an issued token.
const DefaultTokenTTL = time.Hour

// ErrEmptySecret is returned by New when no signing secret is configured.
var ErrEmptySecret = errors.New("token signing secret is empty")

// Auth signs tokens with a server-held HMAC secret, verifies them and
// gates HTTP handlers on a valid token.
type Auth struct {
	// secret is the key used to sign and verify tokens. It never leaves the server.
	secret []byte

	// ttl is how long an issued token stays valid.
	ttl time.Duration

	// authCookieName is the name of the cookie carrying the token.
	authCookieName string

	secureCookie bool

	now func() time.Time
}

// Claims is the payload of an issued token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// EmailKey is the context key under which the gate stores the authenticated email claim.
const EmailKey ContextKey = "email"

type initOptions struct {
	secureCookie bool
	now          func() time.Time
}

// InitOption configures optional Auth behaviour.
type InitOption func(*initOptions)

// WithSecureCookie controls the Secure attribute of the auth cookie.
func WithSecureCookie(secure bool) InitOption {
	return func(options *initOptions) {
		options.secureCookie = secure
	}
}

// WithClock overrides the clock used to stamp issued tokens.
func WithClock(now func() time.Time) InitOption {
	return func(options *initOptions) {
		options.now = now
	}
}

// New creates an Auth. An empty secret is a configuration error; a ttl <= 0
// falls back to DefaultTokenTTL.
func New(
	secret []byte,
	ttl time.Duration,
	authCookieName string,
	optionsProto ...InitOption,
) (*Auth, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	options := &initOptions{
		secureCookie: true,
		now:          time.Now,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &Auth{
		secret:         secret,
		ttl:            ttl,
		authCookieName: authCookieName,
		secureCookie:   options.secureCookie,
		now:            options.now,
	}, nil
}

// IssueToken mints a signed token carrying email. It returns the token and its expiry.
func (a *Auth) IssueToken(email string) (string, time.Time, error) {
	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf(
			"in internal/auth/auth.go/IssueToken(): error while `token.SignedString()` calling: %w",
			err,
		)
	}

	return tokenString, expiresAt, nil
}

// VerifyToken checks the signature and expiry of tokenString and returns its
// claims. Every failure is a *Failure matching ErrUnauthorized.
func (a *Auth) VerifyToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, &Failure{Reason: ReasonMissing}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		},
	)
	if err != nil {
		return nil, &Failure{Reason: reasonFromJWTError(err), Err: err}
	}

	if !token.Valid || claims.Email == "" || claims.ExpiresAt == nil {
		return nil, &Failure{Reason: ReasonMalformed}
	}

	return claims, nil
}

// AuthenticateUser is the gate in front of protected handlers. It verifies
// the request token and stores the email claim in the request context.
// Any failure ends the request with 401 and the same generic body.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		claims, err := a.VerifyToken(a.getTokenStringFromCookieOrAuthorizationHeader(request))
		if err != nil {
			logger.Log.Debugln("Error calling the `a.VerifyToken()`: ", zap.Error(err))
			writeUnauthorized(response)

			return
		}

		ctx := context.WithValue(request.Context(), EmailKey, claims.Email)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// SetAuthCookie stores tokenString in the HttpOnly, SameSite=Strict auth cookie.
func (a *Auth) SetAuthCookie(response http.ResponseWriter, tokenString string, expiresAt time.Time) {
	http.SetCookie(
		response,
		&http.Cookie{
			Name:     a.authCookieName,
			Value:    tokenString,
			Path:     "/",
			Expires:  expiresAt,
			HttpOnly: true,
			Secure:   a.secureCookie,
			SameSite: http.SameSiteStrictMode,
		},
	)
}

// EmailFromContext returns the email claim stored by AuthenticateUser.
func EmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)

	return email, ok && email != ""
}

func (a *Auth) getTokenStringFromCookieOrAuthorizationHeader(request *http.Request) string {
	cookie, err := request.Cookie(a.authCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := request.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}

	return ""
}

func writeUnauthorized(response http.ResponseWriter) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusUnauthorized)

	err := json.NewEncoder(response).Encode(models.ErrorResponse{Error: http.StatusText(http.StatusUnauthorized)})
	if err != nil {
		logger.Log.Debugln("Error calling the `json.NewEncoder().Encode()`: ", zap.Error(err))
	}
}
