package main

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v4"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// RoleUser is required by the book write endpoints.
const RoleUser = "ROLE_USER"

var (
	ErrAuthDisabled  = errors.New("no jwt secret configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenNoExpiry = errors.New("token has no expiration")
)

// Authorizer resolves the roles granted to the caller of a request.
type Authorizer interface {
	Roles(r *http.Request) []string
}

var _ Authorizer = (*JWTAuthorizer)(nil)

// Claims carries the caller identity. Both a single `role` and a `roles`
// list are accepted.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"uid,omitempty"`
	Role   string   `json:"role,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// Granted returns the union of the role claims.
func (c *Claims) Granted() []string {
	roles := slices.Clone(c.Roles)
	if c.Role != "" && !slices.Contains(roles, c.Role) {
		roles = append(roles, c.Role)
	}
	return roles
}

// JWTAuthorizer grants the roles claimed by HS256 bearer tokens signed with
// the configured secret.
type JWTAuthorizer struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTAuthorizer provides an authorizer over the configured secret. Without
// a secret no role is ever granted.
func NewJWTAuthorizer(config *Config) *JWTAuthorizer {
	ja := &JWTAuthorizer{
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	if config != nil {
		ja.secret = []byte(config.Auth.JWTSecret)
		ja.issuer = config.Auth.Issuer
	}
	return ja
}

// bearerToken extracts the token of an `Authorization: Bearer <token>` header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Verify checks the signature, the expiration and the issuer of the token.
func (ja *JWTAuthorizer) Verify(token string) (*Claims, error) {
	if len(ja.secret) == 0 {
		return nil, ErrAuthDisabled
	}
	claims := &Claims{}
	parsed, err := ja.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return ja.secret, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return nil, ErrTokenNoExpiry
	}
	if ja.issuer != "" && !claims.VerifyIssuer(ja.issuer, true) {
		return nil, errors.Join(ErrInvalidToken, jwt.ErrTokenInvalidIssuer)
	}
	return claims, nil
}

// Roles implements Authorizer.
func (ja *JWTAuthorizer) Roles(r *http.Request) []string {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	claims, err := ja.Verify(token)
	if err != nil {
		return nil
	}
	return claims.Granted()
}

// IssueToken signs an HS256 token for the subject valid for ttl.
func IssueToken(config *AuthConfig, subject string, roles []string, ttl time.Duration) (string, error) {
	if config.JWTSecret == "" {
		return "", ErrAuthDisabled
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.Must(uuid.NewV4()).String(),
			Issuer:    config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: subject,
		Roles:  roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.JWTSecret))
}

// RequireRole rejects with 401 the requests whose caller was not granted the role.
func (api *APIHandler) RequireRole(role string) MiddlewareFunc {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			if slices.Contains(api.auth.Roles(r), role) {
				next(w, r, ps)
				return
			}
			api.logger.Info("unauthorized request",
				zap.String("request.id", GetValueFromContext(r.Context(), RequestIDContextKey)),
				zap.String("request.path", r.URL.Path),
				zap.String("auth.role", role),
			)
			api.respond(w, r, NegotiateFormat(r), http.StatusUnauthorized, UnauthorizedResponse{
				Error:   "Unauthorized",
				Message: "Full authentication is required to access this resource.",
			})
		}
	}
}
