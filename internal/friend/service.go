package friend

import (
	"context"
	"errors"
	"fmt"

	"campuschat/internal/user"
)

var (
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrDuplicateRequest = errors.New("a friend request is already pending")
	ErrUnknownUser      = errors.New("unknown user")
	ErrNotRecipient     = errors.New("only the recipient can decide a request")
)

// Store is what the service needs from the friend repository.
type Store interface {
	PendingRequestExists(ctx context.Context, a, b string) (bool, error)
	CreateRequest(ctx context.Context, sender, recipient string) (int, error)
	GetRequest(ctx context.Context, id int) (*FriendRequest, error)
	DeleteRequest(ctx context.Context, id int) error
	ListIncomingRequests(ctx context.Context, username string) ([]FriendRequest, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	AddFriendEdges(ctx context.Context, a, b string) error
	RemoveFriendEdges(ctx context.Context, a, b string) error
	ListFriends(ctx context.Context, username string) ([]Friend, error)
}

// UserDirectory resolves usernames to accounts.
type UserDirectory interface {
	GetUser(ctx context.Context, username string) (*user.User, error)
}

type Service struct {
	repo  Store
	users UserDirectory
}

func NewService(repo Store, users UserDirectory) *Service {
	return &Service{repo: repo, users: users}
}

// SendRequest records a pending friend request after checking the
// unique-pending-pair invariant.
func (s *Service) SendRequest(ctx context.Context, sender, recipient string) (int, error) {
	if sender == recipient {
		return 0, ErrSelfRequest
	}

	if _, err := s.users.GetUser(ctx, recipient); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return 0, ErrUnknownUser
		}
		return 0, err
	}

	friends, err := s.repo.AreFriends(ctx, sender, recipient)
	if err != nil {
		return 0, err
	}
	if friends {
		return 0, ErrAlreadyFriends
	}

	pending, err := s.repo.PendingRequestExists(ctx, sender, recipient)
	if err != nil {
		return 0, err
	}
	if pending {
		return 0, ErrDuplicateRequest
	}

	return s.repo.CreateRequest(ctx, sender, recipient)
}

// Accept turns a pending request into two directed friend rows and deletes
// the request.
func (s *Service) Accept(ctx context.Context, username string, requestID int) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Recipient != username {
		return ErrNotRecipient
	}

	if err := s.repo.AddFriendEdges(ctx, req.Sender, req.Recipient); err != nil {
		return fmt.Errorf("accepting friend request: %w", err)
	}
	return s.repo.DeleteRequest(ctx, requestID)
}

// Decline deletes a pending request without creating any friend rows.
func (s *Service) Decline(ctx context.Context, username string, requestID int) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Recipient != username {
		return ErrNotRecipient
	}
	return s.repo.DeleteRequest(ctx, requestID)
}

// Remove deletes the friendship in both directions.
func (s *Service) Remove(ctx context.Context, username, other string) error {
	return s.repo.RemoveFriendEdges(ctx, username, other)
}

func (s *Service) Friends(ctx context.Context, username string) ([]Friend, error) {
	return s.repo.ListFriends(ctx, username)
}

func (s *Service) IncomingRequests(ctx context.Context, username string) ([]FriendRequest, error) {
	return s.repo.ListIncomingRequests(ctx, username)
}
