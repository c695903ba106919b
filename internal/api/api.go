package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/didip/tollbooth/v5"
	"github.com/didip/tollbooth/v5/limiter"
	"github.com/rs/cors"
	"github.com/sebest/xff"
	"github.com/sirupsen/logrus"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/mailer"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
	"github.com/F3-Nation/f3-nation-auth/internal/verification"
)

const defaultVersion = "unknown version"

// API is the main REST API
type API struct {
	handler  http.Handler
	db       *storage.Connection
	config   *conf.GlobalConfiguration
	version  string
	verifier verification.Provider

	// overrideTime can be used to override the clock used by handlers. Should only be used in tests!
	overrideTime func() time.Time
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *API) Now() time.Time {
	if a.overrideTime != nil {
		return a.overrideTime()
	}

	return time.Now()
}

// NewAPI instantiates a new REST API
func NewAPI(globalConfig *conf.GlobalConfiguration, db *storage.Connection) *API {
	return NewAPIWithVersion(context.Background(), globalConfig, db, defaultVersion)
}

// NewAPIWithVersion creates a new REST API using the specified version
func NewAPIWithVersion(ctx context.Context, globalConfig *conf.GlobalConfiguration, db *storage.Connection, version string) *API {
	api := &API{config: globalConfig, db: db, version: version}

	verifier, err := verification.NewProvider(globalConfig, db, api.Mailer())
	if err != nil {
		logrus.WithError(err).Fatal("invalid verification provider configuration")
	}
	api.verifier = verifier

	xffmw, _ := xff.Default()
	logger := observability.NewStructuredLogger(logrus.StandardLogger())

	r := newRouter()
	r.Use(addRequestID(globalConfig))
	r.UseBypass(xffmw.Handler)
	r.UseBypass(recoverer)

	if globalConfig.API.MaxRequestDuration > 0 {
		r.UseBypass(timeoutMiddleware(globalConfig.API.MaxRequestDuration))
	}

	if globalConfig.DB.CleanupEnabled {
		cleanup := models.NewCleanup()
		r.UseBypass(api.databaseCleanup(cleanup))
	}

	r.Get("/health", api.HealthCheck)

	r.Route("/", func(r *router) {
		r.UseBypass(logger)

		r.Get("/.well-known/openid_configuration", api.OpenIDConfiguration)

		r.Get("/authorize", api.Authorize)

		r.With(api.limitHandler(
			// Allow requests at the specified rate per 5 minutes.
			tollbooth.NewLimiter(api.config.RateLimitToken/(60*5), &limiter.ExpirableOptions{
				DefaultExpirationTTL: time.Hour,
			}).SetBurst(30),
		)).Post("/token", api.Token)

		r.Get("/userinfo", api.UserInfo)
		r.Post("/userinfo", api.UserInfo)

		verifyLimiter := api.limitHandler(
			// Allow requests at the specified rate per 5 minutes.
			tollbooth.NewLimiter(api.config.RateLimitVerify/(60*5), &limiter.ExpirableOptions{
				DefaultExpirationTTL: time.Hour,
			}).SetBurst(30),
		)
		r.With(verifyLimiter).Post("/verify-email", api.VerifyEmail)
		r.With(verifyLimiter).Post("/verify-email/send", api.SendVerificationCode)
		r.With(verifyLimiter).Post("/verify-email/consume", api.ConsumeVerificationCode)

		r.With(api.requireAuthentication).Route("/profile/email", func(r *router) {
			r.Get("/", api.PendingEmailChange)
			r.Delete("/", api.CancelEmailChange)
			r.Post("/initiate", api.InitiateEmailChange)
			r.Post("/verify-old", api.VerifyOldEmail)
			r.Post("/verify-new", api.VerifyNewEmail)
			r.Post("/resend", api.ResendEmailChangeCodes)
		})
	})

	corsHandler := cors.New(cors.Options{
		AllowOriginFunc:  allowedCORSOrigins(globalConfig, db),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   globalConfig.CORS.AllAllowedHeaders([]string{"Accept", "Authorization", "Content-Type", "X-Client-IP", "X-Client-Info"}),
		ExposedHeaders:   []string{"X-Total-Count", "Link"},
		AllowCredentials: true,
	})

	api.handler = corsHandler.Handler(r)
	return api
}

// allowedCORSOrigins admits the site itself plus every origin registered on
// an active client. The set is captured at construction; a config reload
// rebuilds the API and picks up newly registered clients.
func allowedCORSOrigins(globalConfig *conf.GlobalConfiguration, db *storage.Connection) func(origin string) bool {
	allowed := make(map[string]bool)

	if u, err := url.Parse(globalConfig.SiteURL); err == nil && u.Host != "" {
		allowed[u.Scheme+"://"+u.Host] = true
	}

	origins, err := models.FindClientOrigins(db)
	if err != nil {
		logrus.WithError(err).Warn("unable to load client origins for CORS")
	}
	for _, origin := range origins {
		allowed[origin] = true
	}

	return func(origin string) bool {
		return allowed[origin]
	}
}

type HealthCheckResponse struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthCheck endpoint indicates if the api service is available
func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) error {
	return sendJSON(w, http.StatusOK, HealthCheckResponse{
		Version:     a.version,
		Name:        "f3auth",
		Description: "f3auth is an OAuth 2.0 authorization and email verification API",
	})
}

// Mailer returns NewMailer with the current config
func (a *API) Mailer() mailer.Mailer {
	config := a.config
	return mailer.NewMailer(config)
}
