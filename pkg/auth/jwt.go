package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/patientflow/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims carried by access tokens.
type Claims struct {
	UserID     uuid.UUID  `json:"userId"`
	HospitalID uuid.UUID  `json:"hospitalId"`
	Email      string     `json:"email"`
	Role       model.Role `json:"role"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	jwt.RegisteredClaims
}

type JWTService interface {
	GenerateToken(user *model.User) (token string, expiresAt time.Time, err error)
	ValidateToken(token string) (*model.Principal, error)
	// Revoke rejects the token id until the token would have expired anyway.
	Revoke(tokenID string, expiresAt time.Time)
}

type Config struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

type jwtService struct {
	secret  []byte
	issuer  string
	expiry  time.Duration
	revoked *cache.Cache
	now     func() time.Time
}

func NewJWTService(cfg Config) JWTService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 7 * 24 * time.Hour
	}
	return &jwtService{
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		expiry:  cfg.Expiry,
		revoked: cache.New(cfg.Expiry, time.Hour),
		now:     time.Now,
	}
}

func (s *jwtService) GenerateToken(user *model.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)
	claims := &Claims{
		UserID:     user.ID,
		HospitalID: user.HospitalID,
		Email:      user.Email,
		Role:       user.Role,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*model.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == uuid.Nil || claims.HospitalID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	if _, revoked := s.revoked.Get(claims.ID); revoked {
		return nil, ErrRevokedToken
	}

	return &model.Principal{
		UserID:     claims.UserID,
		HospitalID: claims.HospitalID,
		Email:      claims.Email,
		Role:       claims.Role,
		FirstName:  claims.FirstName,
		LastName:   claims.LastName,
		TokenID:    claims.ID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func (s *jwtService) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	s.revoked.Set(tokenID, struct{}{}, ttl)
}
