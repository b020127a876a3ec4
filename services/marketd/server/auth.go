package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"nftmarket/observability/logging"
)

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
	// Reserved subjects are refused even with a valid signature.
	Reserved []common.Address
}

type contextKey string

const contextKeyCaller contextKey = "marketd.caller"

// Authenticator resolves the calling account from an HMAC-signed JWT whose
// subject is the caller's hex address.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator builds an authenticator. An empty secret rejects every
// token.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

// Middleware rejects requests without a valid bearer token and stores the
// caller address in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "auth", "missing bearer token")
			return
		}
		caller, err := a.Verify(tokenString)
		if err != nil {
			a.logger.Warn("token validation failed",
				slog.String("path", r.URL.Path),
				logging.MaskField("token", tokenString),
				slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "auth", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses tokenString and returns the caller it names.
func (a *Authenticator) Verify(tokenString string) (common.Address, error) {
	if len(a.secret) == 0 {
		return common.Address{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name, jwt.SigningMethodHS384.Name, jwt.SigningMethodHS512.Name}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, err
	}
	if !token.Valid {
		return common.Address{}, errors.New("token invalid")
	}
	subject := strings.TrimSpace(claims.Subject)
	if !common.IsHexAddress(subject) {
		return common.Address{}, fmt.Errorf("subject %q is not an address", subject)
	}
	caller := common.HexToAddress(subject)
	if caller == (common.Address{}) {
		return common.Address{}, errors.New("subject is the zero address")
	}
	for _, reserved := range a.cfg.Reserved {
		if caller == reserved {
			return common.Address{}, fmt.Errorf("subject %s is reserved", caller.Hex())
		}
	}
	return caller, nil
}

// IssueToken signs an HS256 token naming caller as subject.
func IssueToken(secret, issuer string, caller common.Address, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("secret required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.RegisteredClaims{
		Subject:   strings.ToLower(caller.Hex()),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func callerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	return caller, ok
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
