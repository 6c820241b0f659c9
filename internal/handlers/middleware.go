package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vitapersonal/authserver/internal/policy"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/types"
)

// AuthMiddleware resolves the caller's identity from a bearer token
// and maintains the per-request activity bookkeeping.
type AuthMiddleware struct {
	users    *services.UserService
	activity *services.ActivityService
	secret   []byte
	logger   *zap.Logger
}

func NewAuthMiddleware(users *services.UserService, activity *services.ActivityService, jwtSecret string, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		users:    users,
		activity: activity,
		secret:   []byte(jwtSecret),
		logger:   logger,
	}
}

// Resolve attaches the caller's identity (anonymous when no valid
// token is presented) and a fresh request state to the context, then
// runs the request-driven profile updater for authenticated callers.
// It never rejects a request; use Require for that.
func (m *AuthMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := policy.WithRequestState(r.Context(), &policy.RequestState{})

		user, ok := m.resolveUser(ctx, r)
		if !ok {
			ctx = withIdentity(ctx, policy.Anonymous)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		identity := policy.Identity{
			ID:            user.ID,
			Authenticated: true,
			Staff:         user.IsStaff,
			Superuser:     user.IsSuperuser,
		}
		ctx = withIdentity(ctx, identity)
		ctx = withCurrentUser(ctx, &user)

		if err := m.activity.UpdateFromRequest(ctx, &user, remoteIP(r)); err != nil {
			// Bookkeeping failure never fails the request.
			m.logger.Warn("activity update failed",
				zap.Int("user_id", user.ID),
				zap.Error(err))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects unauthenticated requests with 401.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).Authenticated {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) resolveUser(ctx context.Context, r *http.Request) (types.User, bool) {
	tokenString, err := bearerToken(r)
	if err != nil {
		return types.User{}, false
	}

	subject, err := parseTokenSubject(tokenString, m.secret)
	if err != nil {
		return types.User{}, false
	}

	userID, err := subjectFromToken(subject)
	if err != nil {
		return types.User{}, false
	}

	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, false
	}
	if user.Status == types.StatusClosed {
		return types.User{}, false
	}
	return user, true
}

func withIdentity(ctx context.Context, identity policy.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

func withCurrentUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// IdentityFromContext returns the resolved identity, or the anonymous
// identity when resolution did not run.
func IdentityFromContext(ctx context.Context) policy.Identity {
	identity, _ := ctx.Value(contextIdentityKey).(policy.Identity)
	return identity
}

// CurrentUser returns the authenticated caller's record, when any.
func CurrentUser(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(*types.User)
	return user, ok && user != nil
}

func issueToken(userID int, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
