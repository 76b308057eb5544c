package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/repositories"
)

var errUserRepositoryRequired = errors.New("user service: repository is required")

// ErrUserInvalidInput indicates the update carried no usable account id.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserUnavailable indicates the user store could not be reached.
var ErrUserUnavailable = errors.New("user service: unavailable")

// UserServiceDeps wires the user repository.
type UserServiceDeps struct {
	Repository repositories.UserRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type userService struct {
	repo   repositories.UserRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewUserService constructs a UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Repository == nil {
		return nil, errUserRepositoryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		repo:   deps.Repository,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterUserCommand) (domain.User, bool, error) {
	if cmd.TelegramID == 0 {
		return domain.User{}, false, ErrUserInvalidInput
	}
	user, created, err := s.repo.GetOrCreate(ctx, domain.User{
		TelegramID:   cmd.TelegramID,
		Username:     strings.TrimPrefix(strings.TrimSpace(cmd.Username), "@"),
		FirstName:    strings.TrimSpace(cmd.FirstName),
		RegisteredAt: s.now(),
	})
	if err != nil {
		return domain.User{}, false, translateUserError(err)
	}
	if created {
		s.logger(ctx, "user.registered", map[string]any{"userID": user.TelegramID})
	}
	return user, created, nil
}

func (s *userService) ListRecipientIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return nil, translateUserError(err)
	}
	return ids, nil
}

func translateUserError(err error) error {
	if isRepoUnavailable(err) {
		return errors.Join(ErrUserUnavailable, err)
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}
