// Package auth resolves the API bearer token on a request to the user that
// owns it and carries that identity on the request context.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// TokenStore looks users up by the digest of their API token.
// *storage.SQLiteRepository satisfies it.
type TokenStore interface {
	UserByTokenHash(ctx context.Context, tokenHash string) (core.User, error)
}

// HashToken returns the hex sha256 digest stored in users.api_token_hash.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns a random 32-byte token, hex encoded, and its digest.
func GenerateToken() (token, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Resolve maps the request's bearer token to a user id. Any failure to
// identify the caller is reported as Unauthenticated; store errors are
// returned as is.
func Resolve(ctx context.Context, store TokenStore, r *http.Request) (int64, error) {
	token, ok := BearerToken(r)
	if !ok {
		return 0, core.Unauthenticated()
	}
	user, err := store.UserByTokenHash(ctx, HashToken(token))
	if errors.Is(err, core.ErrNotFound) {
		return 0, core.Unauthenticated()
	}
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Middleware authenticates every request and stores the user id with
// core.WithUserID. onFail writes the rejection response.
func Middleware(store TokenStore, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := Resolve(r.Context(), store, r)
			if err != nil {
				if core.KindOf(err) != core.KindUnauthenticated {
					slog.ErrorContext(r.Context(), "Token lookup failed",
						log.FieldComponent, log.ComponentAuth,
						log.FieldError, err)
				}
				onFail(w, r, err)
				return
			}

			ctx := core.WithUserID(r.Context(), userID)
			ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
