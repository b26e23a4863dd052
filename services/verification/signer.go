package verification

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
)

const routePrefix = "/v1/auth/verify"

type Claims struct {
	Hash string `json:"hash"`
	jwt.RegisteredClaims
}

// SignatureVerifier checks the signature and expiry of a verification link
// before the user record is consulted.
type SignatureVerifier interface {
	VerifySignature(id, hash, expires, signature string) error
}

// EmailHash is the hash segment of a verification link.
func EmailHash(email string) string {
	sum := sha1.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

// LinkSigner issues verification links signed with an HS256 JWT and
// validates them again on the way back in.
type LinkSigner struct {
	config *config.Config
	logger *logging.Service
	clock  func() time.Time
}

func NewLinkSigner(cfg *config.Config, logger *logging.Service) *LinkSigner {
	return &LinkSigner{
		config: cfg,
		logger: logger,
		clock:  time.Now,
	}
}

func (s *LinkSigner) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Sign returns the verification URL for user and when it stops working.
func (s *LinkSigner) Sign(user *users.User) (string, time.Time, error) {
	now := s.clock()
	expires := now.Add(s.config.Auth.VerificationExpiry).Truncate(time.Second)
	id := strconv.FormatUint(uint64(user.ID), 10)
	hash := EmailHash(user.Email)

	claims := Claims{
		Hash: hash,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.config.App.Name,
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signature, err := token.SignedString([]byte(s.config.Auth.SigningKey))
	if err != nil {
		s.logger.Error("failed to sign verification link", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("failed to sign verification link: %w", err)
	}

	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires.Unix(), 10))
	query.Set("signature", signature)

	link := fmt.Sprintf("%s%s/%s/%s?%s",
		strings.TrimRight(s.config.App.URL, "/"), routePrefix, id, hash, query.Encode())
	return link, expires, nil
}

// VerifySignature accepts the link only when the JWT is intact, unexpired
// and covers exactly this id, hash and expiry.
func (s *LinkSigner) VerifySignature(id, hash, expires, signature string) error {
	if signature == "" || expires == "" {
		return validation.InvalidSignedLink()
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signature, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}
		return []byte(s.config.Auth.SigningKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Info("expired verification link", zap.String("user_id", id))
		} else {
			s.logger.Warn("verification link signature rejected", zap.Error(err), zap.String("user_id", id))
		}
		return validation.InvalidSignedLink()
	}

	signedExpiry := strconv.FormatInt(claims.ExpiresAt.Unix(), 10)
	if !equal(claims.Subject, id) || !equal(claims.Hash, hash) || !equal(signedExpiry, expires) {
		s.logger.Warn("verification link parameters do not match signature", zap.String("user_id", id))
		return validation.InvalidSignedLink()
	}

	return nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
