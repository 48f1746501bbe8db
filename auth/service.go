package auth

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"guardex/database"
	"guardex/models"
	"strings"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrInvalidVerifyToken = errors.New("invalid or expired token")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrMailFailed         = errors.New("signup succeeded but failed to send email")
)

// Store is the user persistence used by the Service.
type Store interface {
	CreateUser(ctx context.Context, user *database.UserDB) error
	UserByEmail(ctx context.Context, email string) (*database.UserDB, error)
	UserByVerifyToken(ctx context.Context, token string) (*database.UserDB, error)
	MarkVerified(ctx context.Context, userID string) error
}

// Mailer delivers verification emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, link string) error
}

// SignupRequest defines the JSON body of a signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Validate reports whether every field is present.
func (r *SignupRequest) Validate() bool {
	return r.Name != "" && r.Email != "" && r.Password != "" && r.Role != ""
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	User  models.PublicUser
	Token string
}

// Service implements signup, login and email verification.
type Service struct {
	store       Store
	hasher      *Hasher
	tokens      *TokenManager
	mailer      Mailer
	frontendURL string
}

// NewService wires the auth service.
func NewService(store Store, hasher *Hasher, tokens *TokenManager, mailer Mailer, frontendURL string) *Service {
	return &Service{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		mailer:      mailer,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Tokens exposes the token manager for request authentication.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Signup registers an unverified user and mails the verification link.
func (s *Service) Signup(ctx context.Context, req SignupRequest) error {
	req.Email = strings.TrimSpace(req.Email)
	if !req.Validate() {
		return ErrMissingFields
	}

	if _, err := s.store.UserByEmail(ctx, req.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	verifyToken := uuid.NewString()
	user := &database.UserDB{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Email:       req.Email,
		Password:    hash,
		Role:        req.Role,
		IsVerified:  false,
		VerifyToken: &verifyToken,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}

	link := fmt.Sprintf("%s/verify/%s", s.frontendURL, verifyToken)
	if err := s.mailer.SendVerification(ctx, user.Email, user.Name, link); err != nil {
		logrus.WithField("email", user.Email).Errorf("failed to send verification email: %v", err)
		return ErrMailFailed
	}

	logrus.WithField("user_id", user.ID).Info("user signed up")
	return nil
}

// Login checks the credentials of a verified user and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.store.UserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, ErrNotVerified
	}

	token, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user.Public(), Token: token}, nil
}

// Verify consumes a verification token.
func (s *Service) Verify(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidVerifyToken
	}

	user, err := s.store.UserByVerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrInvalidVerifyToken
		}
		return fmt.Errorf("lookup token: %w", err)
	}

	if err := s.store.MarkVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	logrus.WithField("user_id", user.ID).Info("email verified")
	return nil
}
