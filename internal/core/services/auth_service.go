package services

import (
	"errors"
	"time"

	"meetrelay/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeService = "service"
)

type AuthService interface {
	GenerateToken(userID domain.UserID, name string) (string, error)
	GenerateRefreshToken(userID domain.UserID) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
	GenerateServiceToken(service string, ttl time.Duration) (string, error)
	ValidateServiceToken(tokenString string) (*Claims, error)
}

type Claims struct {
	UserID    domain.UserID `json:"user_id"`
	Name      string        `json:"name,omitempty"`
	Service   string        `json:"svc,omitempty"`
	TokenType string        `json:"token_type"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret       []byte
	issuer          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

func NewAuthService(jwtSecret, issuer string, accessTokenTTL, refreshTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		issuer:          issuer,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		now:             time.Now,
	}
}

func (s *authService) GenerateToken(userID domain.UserID, name string) (string, error) {
	return s.sign(userID, name, tokenTypeAccess, s.accessTokenTTL)
}

func (s *authService) GenerateRefreshToken(userID domain.UserID) (string, error) {
	return s.sign(userID, "", tokenTypeRefresh, s.refreshTokenTTL)
}

// ValidateToken accepts access tokens only.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken accepts refresh tokens only.
func (s *authService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

// GenerateServiceToken mints a credential for a backend caller such as the
// records application. It carries no user.
func (s *authService) GenerateServiceToken(service string, ttl time.Duration) (string, error) {
	if service == "" {
		return "", errors.New("service name is required")
	}
	if ttl <= 0 {
		ttl = s.refreshTokenTTL
	}
	return s.signClaims(&Claims{Service: service, TokenType: tokenTypeService}, ttl)
}

// ValidateServiceToken accepts service tokens only.
func (s *authService) ValidateServiceToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeService)
}

func (s *authService) sign(userID domain.UserID, name, tokenType string, ttl time.Duration) (string, error) {
	return s.signClaims(&Claims{UserID: userID, Name: name, TokenType: tokenType}, ttl)
}

func (s *authService) signClaims(claims *Claims, ttl time.Duration) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) validate(tokenString, tokenType string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	if tokenType == tokenTypeService {
		if claims.Service == "" || claims.UserID != 0 {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}
	if claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
