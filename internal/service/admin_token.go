package service

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const adminRole = "admin"

// AdminTokenService emite y valida tokens JWT para la API de administración.
type AdminTokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type AdminClaims struct {
	OwnerID int64  `json:"oid"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrAdminTokenInvalid = errors.New("admin token invalid")
	ErrAdminTokenExpired = errors.New("admin token expired")
)

func NewAdminTokenService(secret string, ttl time.Duration) *AdminTokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AdminTokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "leech-bot",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Configured indica si hay secreto para firmar tokens.
func (s *AdminTokenService) Configured() bool {
	return s != nil && len(s.secret) > 0
}

func (s *AdminTokenService) Generate(ownerID int64) (string, time.Time, error) {
	if !s.Configured() || ownerID == 0 {
		return "", time.Time{}, ErrAdminTokenInvalid
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := AdminClaims{
		OwnerID: ownerID,
		Role:    adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(ownerID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *AdminTokenService) Parse(tokenString string) (AdminClaims, error) {
	if !s.Configured() {
		return AdminClaims{}, ErrAdminTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return AdminClaims{}, ErrAdminTokenInvalid
	}
	var claims AdminClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AdminClaims{}, ErrAdminTokenExpired
		}
		return AdminClaims{}, ErrAdminTokenInvalid
	}
	if !s.isValidClaims(claims) {
		return AdminClaims{}, ErrAdminTokenInvalid
	}
	return claims, nil
}

func (s *AdminTokenService) isValidClaims(claims AdminClaims) bool {
	if claims.Role != adminRole || claims.OwnerID == 0 {
		return false
	}
	if claims.Subject != strconv.FormatInt(claims.OwnerID, 10) {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
