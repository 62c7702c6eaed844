package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"user-service/internal/entity"
	"user-service/internal/repository"
)

// UserStore is the storage gateway used by UserService.
type UserStore interface {
	FindAll(ctx context.Context) ([]*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByDNI(ctx context.Context, dni string) (*entity.User, error)
	Create(ctx context.Context, user *entity.User) (*entity.User, error)
}

// CreateObserver is notified about create outcomes. Used for metrics.
type CreateObserver interface {
	UserCreated()
	DuplicateRejected()
}

type UserService struct {
	repo     UserStore
	locker   Locker
	events   EventPublisher
	observer CreateObserver
}

type Option func(*UserService)

// WithLocker replaces the default in-process per-dni lock.
func WithLocker(l Locker) Option {
	return func(s *UserService) { s.locker = l }
}

// WithEvents publishes a user-created event after every successful create.
func WithEvents(p EventPublisher) Option {
	return func(s *UserService) { s.events = p }
}

func WithObserver(o CreateObserver) Option {
	return func(s *UserService) { s.observer = o }
}

// NewUserService creates a new instance of UserService.
func NewUserService(repo UserStore, opts ...Option) *UserService {
	s := &UserService{repo: repo, locker: NewKeyedMutex()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers returns every stored user in storage order.
func (s *UserService) ListUsers(ctx context.Context) ([]*entity.User, error) {
	users, err := s.repo.FindAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error listing users")
		return nil, &StorageError{Op: "list users", Err: err}
	}

	log.Info().Msgf("Found %d users", len(users))
	return users, nil
}

// GetUser retrieves a user by the raw id taken from the request path.
func (s *UserService) GetUser(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Info().Msgf("User not found: %s", id)
			return nil, &NotFoundError{ID: id}
		}
		log.Error().Err(err).Msgf("Error getting user by ID %s", id)
		return nil, &StorageError{Op: "find user by id", Err: err}
	}

	log.Info().Msgf("User found: %s (ID: %s)", user.Name, id)
	return user, nil
}

// CreateUser stores a new user unless one with the same dni exists. Creates
// for the same dni are serialized so the check and the insert cannot interleave.
func (s *UserService) CreateUser(ctx context.Context, req entity.CreateUserRequest) (*entity.User, error) {
	unlock, err := s.locker.Lock(ctx, req.DNI)
	if err != nil {
		log.Error().Err(err).Msgf("Error acquiring create lock for DNI %s", req.DNI)
		return nil, &StorageError{Op: "lock dni", Err: err}
	}
	defer unlock()

	existing, err := s.repo.FindByDNI(ctx, req.DNI)
	switch {
	case err == nil && existing != nil:
		return nil, s.duplicate(req.DNI)
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		log.Error().Err(err).Msgf("Error checking for existing user with DNI %s", req.DNI)
		return nil, &StorageError{Op: "find user by dni", Err: err}
	}

	created, err := s.repo.Create(ctx, req.ToUser())
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateDNI) {
			return nil, s.duplicate(req.DNI)
		}
		log.Error().Err(err).Msgf("Error inserting user with DNI %s", req.DNI)
		return nil, &StorageError{Op: "insert user", Err: err}
	}

	log.Info().Msgf("User created successfully: %s (ID: %d)", created.Name, created.ID)
	if s.observer != nil {
		s.observer.UserCreated()
	}

	if s.events != nil {
		// the user is already stored; a failed publish must not turn the create into an error
		if err := s.events.PublishUserEvent(ctx, created, "created"); err != nil {
			log.Error().Err(err).Msgf("Error publishing created event for user %d", created.ID)
		}
	}

	return created, nil
}

func (s *UserService) duplicate(dni string) error {
	log.Info().Msgf("User already exists: %s", dni)
	if s.observer != nil {
		s.observer.DuplicateRejected()
	}
	return &DuplicateError{DNI: dni}
}
