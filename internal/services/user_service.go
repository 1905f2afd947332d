package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	"github.com/corneadesci/funding-service/internal/infrastructure/kafka"
	"github.com/corneadesci/funding-service/internal/infrastructure/redis"
	"github.com/corneadesci/funding-service/internal/models"
	"github.com/corneadesci/funding-service/internal/repository"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

const tokenTTL = 7 * 24 * time.Hour

type UserService interface {
	Register(ctx context.Context, req models.CreateUserRequest) (*models.AuthResponse, error)
	Login(ctx context.Context, email, password string) (*models.AuthResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserResponse, error)
	Update(ctx context.Context, callerID, id uuid.UUID, req models.UpdateUserRequest) (*models.UserResponse, error)
	Delete(ctx context.Context, callerID, id uuid.UUID) error
	List(ctx context.Context) ([]models.UserResponse, error)
}

type userService struct {
	userRepo    repository.UserRepository
	redisClient redis.RedisClient
	producer    kafka.KafkaProducer
	jwtSecret   string
}

func NewUserService(
	userRepo repository.UserRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	jwtSecret string,
) *userService {
	return &userService{
		userRepo:    userRepo,
		redisClient: redisClient,
		producer:    producer,
		jwtSecret:   jwtSecret,
	}
}

func (s *userService) Register(ctx context.Context, req models.CreateUserRequest) (*models.AuthResponse, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	if req.Email == "" || req.Username == "" || req.Password == "" {
		span.SetStatus(codes.Error, "empty email, username or password")
		return nil, pkgerrors.ErrInvalidInput
	}
	if !req.Role.Valid() {
		span.SetStatus(codes.Error, "invalid role")
		return nil, pkgerrors.ErrInvalidInput
	}

	existing, err := s.userRepo.GetByEmailOrUsername(ctx, req.Email, req.Username)
	if existing != nil {
		span.SetStatus(codes.Error, "user already exists")
		if existing.Email == req.Email {
			slog.Warn("email already in use", "email", req.Email, "existing_id", existing.ID)
			return nil, pkgerrors.ErrEmailExists
		}
		slog.Warn("username already in use", "username", req.Username, "existing_id", existing.ID)
		return nil, pkgerrors.ErrUsernameExists
	}
	if err != nil && !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user check failed")
		slog.Error("failed to check user existence", "email", req.Email, "error", err)
		return nil, fmt.Errorf("%w: failed to check user existence", pkgerrors.ErrInternal)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		slog.Error("failed to hash password", "email", req.Email, "error", err)
		return nil, fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}

	user := &models.User{
		ID:            uuid.New(),
		Email:         req.Email,
		Username:      req.Username,
		PasswordHash:  string(hash),
		FullName:      req.FullName,
		Bio:           req.Bio,
		Role:          req.Role,
		WalletAddress: req.WalletAddress,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user in DB", "email", req.Email, "error", err)
		return nil, fmt.Errorf("%w: failed to create user", pkgerrors.ErrInternal)
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	event := map[string]interface{}{
		"event_type": "user_registered",
		"user_id":    user.ID,
		"username":   user.Username,
		"role":       user.Role,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to marshal kafka event", "user_id", user.ID, "error", err)
	} else {
		go func() {
			retries := 3
			for i := 0; i < retries; i++ {
				if err := s.producer.Send(context.Background(), "user-events", user.ID.String(), eventBytes); err == nil {
					return
				}
				time.Sleep(time.Second * time.Duration(i+1))
			}
			slog.Error("failed to send user registration event after retries", "user_id", user.ID)
		}()
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username, "role", user.Role)
	userResp := user.Response()
	return &models.AuthResponse{Token: token, User: userResp}, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	tracer := otel.Tracer("user-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to login", "email", email, "error", err)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Error("invalid password", "email", email)
		return nil, pkgerrors.ErrInvalidCredentials
	}

	token, err := s.issueToken(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slog.Info("user logged in", "email", email, "user_id", user.ID)
	userResp := user.Response()
	return &models.AuthResponse{Token: token, User: userResp}, nil
}

// issueToken signs a JWT and caches it so the auth middleware can treat the
// cache as the revocation source of truth.
func (s *userService) issueToken(ctx context.Context, userID uuid.UUID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     time.Now().Add(tokenTTL).Unix(),
		"iat":     time.Now().Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		slog.Error("failed to generate JWT", "error", err)
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.redisClient.Set(ctx, fmt.Sprintf("user:%s:token", userID), tokenString, tokenTTL); err != nil {
		slog.Error("failed to cache JWT", "user_id", userID, "error", err)
	}
	return tokenString, nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*models.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := user.Response()
	return &resp, nil
}

func (s *userService) Update(ctx context.Context, callerID, id uuid.UUID, req models.UpdateUserRequest) (*models.UserResponse, error) {
	if callerID != id {
		return nil, pkgerrors.ErrForbidden
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Bio != nil {
		user.Bio = *req.Bio
	}
	if req.WalletAddress != nil {
		user.WalletAddress = *req.WalletAddress
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		slog.Error("failed to update user", "user_id", id, "error", err)
		return nil, err
	}

	slog.Info("user updated", "user_id", id)
	resp := user.Response()
	return &resp, nil
}

func (s *userService) Delete(ctx context.Context, callerID, id uuid.UUID) error {
	if callerID != id {
		return pkgerrors.ErrForbidden
	}
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("user deleted", "user_id", id)
	return nil
}

func (s *userService) List(ctx context.Context) ([]models.UserResponse, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]models.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, users[i].Response())
	}
	return responses, nil
}
