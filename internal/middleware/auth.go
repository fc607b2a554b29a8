package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"flipit-overrides-api/internal/client"
	"flipit-overrides-api/internal/models"
)

type credentialsKey struct{}

// BearerAuth requires an "Authorization: Bearer <token>" header and stores
// the token for the handlers. The token is forwarded to the FlipIt backend,
// which does the actual validation.
func BearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			slog.Warn("Authentication failed: missing bearer token", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Bearer token required", nil)
			return
		}

		ctx := WithCredentials(r.Context(), client.Credentials{Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithCredentials attaches the caller's credentials to ctx
func WithCredentials(ctx context.Context, creds client.Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext returns the credentials stored by BearerAuth
func CredentialsFromContext(ctx context.Context) (client.Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(client.Credentials)
	return creds, ok && creds.Token != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
