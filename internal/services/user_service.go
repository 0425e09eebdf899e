package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sahel-market/api/internal/repositories"
)

// ErrUserInvalidInput signals a missing or malformed user id.
var ErrUserInvalidInput = errors.New("user: invalid input")

// UserDirectoryDeps bundles collaborators for the user directory.
type UserDirectoryDeps struct {
	Users repositories.UserRepository
}

type userDirectory struct {
	users repositories.UserRepository
}

// NewUserDirectory wires dependencies into a concrete UserDirectory.
func NewUserDirectory(deps UserDirectoryDeps) (UserDirectory, error) {
	if deps.Users == nil {
		return nil, errors.New("user directory: user repository is required")
	}
	return &userDirectory{users: deps.Users}, nil
}

// GetProfile resolves a buyer profile. Orders hold weak references, so a
// deleted account reports found=false rather than an error.
func (d *userDirectory) GetProfile(ctx context.Context, userID string) (UserProfile, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, false, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := d.users.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return UserProfile{}, false, nil
		}
		return UserProfile{}, false, err
	}
	return profile, true, nil
}
