package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters for stored credentials. Changing these invalidates
// every existing password row.
const (
	hashIterations = 600000
	saltBytes      = 16
	keyLength      = 32
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrNotAdmin           = errors.New("admin role required")
)

// Store is what the service needs from the user repository.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, username string) (*User, error)
	SetOnlineStatus(ctx context.Context, username string, online bool) error
	UpdateRole(ctx context.Context, username string, role Role) error
	UpdateCapabilities(ctx context.Context, username string, canPost, canChat bool) error
	SearchUsers(ctx context.Context, query string) ([]User, error)
}

type Service struct {
	repo      Store
	jwtSecret string
}

type SessionClaims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	CanPost  bool   `json:"can_post"`
	CanChat  bool   `json:"can_chat"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

// HashPassword derives a PBKDF2-HMAC-SHA256 digest of password under a fresh
// random salt. Both return values are hex encoded.
func HashPassword(password string) (digest, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	salt = hex.EncodeToString(raw)
	key := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, keyLength, sha256.New)
	return hex.EncodeToString(key), salt, nil
}

// CheckPassword re-derives the digest under the stored salt and compares in
// constant time.
func CheckPassword(password, salt, digest string) bool {
	key := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, keyLength, sha256.New)
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(key)), []byte(digest)) == 1
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	if _, err := s.repo.GetUser(ctx, req.Username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	digest, salt, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username: req.Username,
		Password: digest,
		Salt:     salt,
		Role:     RoleStudent,
		CanPost:  true,
		CanChat:  true,
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	return u, nil
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUser(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(req.Password, u.Salt, u.Password) {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Username: u.Username,
		Role:     u.Role,
		CanPost:  u.CanPost,
		CanChat:  u.CanChat,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "campuschat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		Username:    u.Username,
		Role:        u.Role,
	}, nil
}

// ValidateToken parses a session token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func (s *Service) SetOnline(ctx context.Context, username string, online bool) error {
	return s.repo.SetOnlineStatus(ctx, username, online)
}

// SetRole changes a user's role. Only admins may call this.
func (s *Service) SetRole(ctx context.Context, actor *SessionClaims, req *UpdateRoleRequest) error {
	if actor.Role != RoleAdmin {
		return ErrNotAdmin
	}
	if !req.Role.Valid() {
		return fmt.Errorf("unknown role %q", req.Role)
	}
	return s.repo.UpdateRole(ctx, req.Username, req.Role)
}

// SetCapabilities changes a user's can-post/can-chat flags. Only admins may call this.
func (s *Service) SetCapabilities(ctx context.Context, actor *SessionClaims, req *UpdateCapabilitiesRequest) error {
	if actor.Role != RoleAdmin {
		return ErrNotAdmin
	}
	return s.repo.UpdateCapabilities(ctx, req.Username, req.CanPost, req.CanChat)
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}
