package api

import (
	"context"
	"net/http"
	"regexp"

	"github.com/golang-jwt/jwt/v5"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
)

var bearerRegexp = regexp.MustCompile(`^(?:B|b)earer (\S+$)`)

// SessionClaims is the payload of the session JWT minted by the web
// frontend. This service only verifies it.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// requireAuthentication checks the session JWT from the Authorization header
// or the session cookie and loads the user it names.
func (a *API) requireAuthentication(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	ctx := r.Context()

	tokenString := a.extractSessionToken(r)
	if tokenString == "" {
		return ctx, unauthorizedError(apierrors.ErrorCodeNoAuthorization, "This endpoint requires a valid session")
	}

	user, err := a.userFromSessionToken(ctx, tokenString)
	if err != nil {
		return ctx, err
	}

	return withUser(ctx, user), nil
}

func (a *API) extractSessionToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if matches := bearerRegexp.FindStringSubmatch(authHeader); len(matches) == 2 {
			return matches[1]
		}
		return ""
	}

	cookie, err := r.Cookie(a.config.JWT.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (a *API) userFromSessionToken(ctx context.Context, tokenString string) (*models.User, error) {
	config := a.config

	parseOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	}
	if config.JWT.Aud != "" {
		parseOptions = append(parseOptions, jwt.WithAudience(config.JWT.Aud))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(config.JWT.Secret), nil
	}, parseOptions...)
	if err != nil || !token.Valid {
		return nil, unauthorizedError(apierrors.ErrorCodeBadJWT, "Invalid session token").WithInternalError(err)
	}

	if claims.Subject == "" {
		return nil, unauthorizedError(apierrors.ErrorCodeBadJWT, "Session token has no subject")
	}

	user, err := models.FindUserByID(a.db.WithContext(ctx), claims.Subject)
	if err != nil {
		if models.IsNotFoundError(err) {
			return nil, unauthorizedError(apierrors.ErrorCodeUserNotFound, "User from session not found")
		}
		return nil, internalServerError("Database error loading user").WithInternalError(err)
	}

	return user, nil
}

// maybeUser is like requireAuthentication but tolerates a missing or invalid
// session; the authorize endpoint answers those with a login redirect rather
// than a 401.
func (a *API) maybeUser(r *http.Request) *models.User {
	tokenString := a.extractSessionToken(r)
	if tokenString == "" {
		return nil
	}
	user, err := a.userFromSessionToken(r.Context(), tokenString)
	if err != nil {
		return nil
	}
	return user
}
