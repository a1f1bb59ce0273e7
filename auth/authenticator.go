// Package auth gates destructive adminctl subcommands behind a local,
// bcrypt-hashed operator credential file. It is not a wire-level ACL
// system: the admin log consumption core has no authenticated RPC
// surface of its own.
package auth

import (
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Authenticator checks operator credentials against a bcrypt-hashed
// local credential file.
type Authenticator struct {
	usersByUsername map[string]UserRecord
	logger          *slog.Logger
}

// NewAuthenticator creates a new Authenticator from the binary operator
// credential file.
func NewAuthenticator(userFilePath string, logger *slog.Logger) (*Authenticator, error) {
	users, err := ReadUserFile(userFilePath)
	if err != nil {
		return nil, fmt.Errorf("could not load operator credential file: %w", err)
	}

	return &Authenticator{
		usersByUsername: users,
		logger:          logger.With("component", "Authenticator"),
	}, nil
}

// AuthenticateUserPass verifies a username/password pair against the
// loaded credential file.
func (a *Authenticator) AuthenticateUserPass(username, password string) error {
	user, ok := a.usersByUsername[username]
	if !ok {
		a.logger.Warn("operator authentication failed: unknown username", "username", username)
		return status.Error(codes.Unauthenticated, "invalid username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		a.logger.Warn("operator authentication failed: password mismatch", "username", username)
		return status.Error(codes.Unauthenticated, "invalid username or password")
	}

	return nil
}
