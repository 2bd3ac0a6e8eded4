package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOperator    = errors.New("invalid operator")
)

const defaultSecret = "default-secret-key-change-in-production"

// Service handles authentication operations
type Service struct {
	jwtSecret []byte
	tokenExp  time.Duration
	operators map[string]models.Operator
}

// NewService creates a new authentication service for the given operator accounts.
func NewService(secret string, exp time.Duration, operators ...models.Operator) (*Service, error) {
	if secret == "" {
		secret = defaultSecret
	}
	if exp <= 0 {
		exp = 24 * time.Hour
	}

	byName := make(map[string]models.Operator, len(operators))
	for _, op := range operators {
		if op.Username == "" || op.PasswordHash == "" || !models.IsValidRole(op.Role) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, op.Username)
		}
		byName[op.Username] = op
	}

	return &Service{
		jwtSecret: []byte(secret),
		tokenExp:  exp,
		operators: byName,
	}, nil
}

// UsesDefaultSecret reports whether no JWT secret was configured.
func (s *Service) UsesDefaultSecret() bool {
	return string(s.jwtSecret) == defaultSecret
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword checks if a password matches a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Login checks credentials against the configured operators and issues tokens.
func (s *Service) Login(username, password string) (*models.LoginResponse, error) {
	op, ok := s.operators[username]
	if !ok || !CheckPassword(password, op.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(op)
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:        token,
		RefreshToken: refresh,
		Username:     op.Username,
		Role:         op.Role,
	}, nil
}

// GenerateToken generates a JWT token for an operator
func (s *Service) GenerateToken(op models.Operator) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      op.Username,
		"username": op.Username,
		"role":     string(op.Role),
		"exp":      now.Add(s.tokenExp).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// GenerateRefreshToken generates a refresh token
func GenerateRefreshToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*models.Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	username, ok := claims["username"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	roleStr, ok := claims["role"].(string)
	if !ok || !models.IsValidRole(models.Role(roleStr)) {
		return nil, ErrInvalidToken
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &models.Claims{
		Username: username,
		Role:     models.Role(roleStr),
		Exp:      int64(exp),
	}, nil
}

// ExtractTokenFromHeader extracts token from Authorization header
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrInvalidToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrInvalidToken
	}

	return parts[1], nil
}
