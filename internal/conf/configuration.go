package conf

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DBConfiguration holds all the database related configuration.
type DBConfiguration struct {
	Driver    string `json:"driver" default:"postgres"`
	URL       string `json:"url" envconfig:"DATABASE_URL" required:"true"`
	Namespace string `json:"namespace" envconfig:"DB_NAMESPACE"`
	// MaxPoolSize defaults to 0 (unlimited).
	MaxPoolSize     int           `json:"max_pool_size" split_words:"true"`
	MaxIdlePoolSize int           `json:"max_idle_pool_size" split_words:"true"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" split_words:"true"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time,omitempty" split_words:"true"`
	CleanupEnabled  bool          `json:"cleanup_enabled" split_words:"true" default:"true"`
}

func (c *DBConfiguration) Validate() error {
	if c.Driver == "" && c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return err
		}
		c.Driver = u.Scheme
	}
	return nil
}

// JWTConfiguration configures validation of resource-owner session tokens.
// Sessions are minted by the web frontend; this service only verifies them.
type JWTConfiguration struct {
	Secret     string `json:"secret" required:"true"`
	Aud        string `json:"aud"`
	Issuer     string `json:"issuer"`
	CookieName string `json:"cookie_name" split_words:"true" default:"session-token"`
}

type APIConfiguration struct {
	Host               string
	Port               string `envconfig:"PORT" default:"8081"`
	Endpoint           string
	RequestIDHeader    string        `envconfig:"REQUEST_ID_HEADER"`
	ExternalURL        string        `json:"external_url" envconfig:"API_EXTERNAL_URL" required:"true"`
	MaxRequestDuration time.Duration `json:"max_request_duration" split_words:"true" default:"10s"`
}

func (a *APIConfiguration) Validate() error {
	_, err := url.ParseRequestURI(a.ExternalURL)
	if err != nil {
		return err
	}
	return nil
}

// OAuthConfiguration holds issuance lifetimes and the authorization UI
// endpoints this server redirects resource owners through.
type OAuthConfiguration struct {
	AuthorizationCodeExp time.Duration `json:"authorization_code_exp" split_words:"true" default:"10m"`
	AccessTokenExp       time.Duration `json:"access_token_exp" split_words:"true" default:"1h"`
	RefreshTokenExp      time.Duration `json:"refresh_token_exp" split_words:"true" default:"720h"`
	LoginPath            string        `json:"login_path" split_words:"true" default:"/sign-in"`
	OnboardingPath       string        `json:"onboarding_path" split_words:"true" default:"/onboarding"`
	DefaultScopes        []string      `json:"default_scopes" split_words:"true" default:"openid,profile,email"`
}

func (o *OAuthConfiguration) Validate() error {
	if o.AuthorizationCodeExp <= 0 || o.AccessTokenExp <= 0 || o.RefreshTokenExp <= 0 {
		return errors.New("conf: OAuth token lifetimes must be positive")
	}
	return nil
}

type SMTPConfiguration struct {
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty" default:"587"`
	User       string `json:"user"`
	Pass       string `json:"pass,omitempty"`
	AdminEmail string `json:"admin_email" split_words:"true"`
	SenderName string `json:"sender_name" split_words:"true"`
}

func (c *SMTPConfiguration) Validate() error {
	return nil
}

// VerificationConfiguration tunes the email verification code engine and
// selects which provider backs it.
type VerificationConfiguration struct {
	// Provider is "store" (database backed) or "memory" (dev/test only).
	Provider    string        `json:"provider" default:"store"`
	CodeExp     time.Duration `json:"code_exp" split_words:"true" default:"10m"`
	MaxAttempts int           `json:"max_attempts" split_words:"true" default:"5"`
	// SendRate bounds how often codes may be sent to a single address.
	SendRate       Rate          `json:"send_rate" split_words:"true" default:"10/1h"`
	EmailChangeExp time.Duration `json:"email_change_exp" split_words:"true" default:"24h"`
	// EmailChangeMaxPerHour bounds how often a user may start an email change.
	EmailChangeMaxPerHour int `json:"email_change_max_per_hour" split_words:"true" default:"3"`
}

func (v *VerificationConfiguration) Validate() error {
	switch v.Provider {
	case "store", "memory":
		return nil
	}
	return errors.New("conf: verification provider must be 'store' or 'memory'")
}

type MailerConfiguration struct {
	Subjects EmailContentConfiguration `json:"subjects"`
	URLPaths EmailContentConfiguration `json:"url_paths"`
}

// EmailContentConfiguration holds per-message subjects and link paths.
type EmailContentConfiguration struct {
	VerificationCode string `json:"verification_code" split_words:"true"`
	EmailChangeOld   string `json:"email_change_old" split_words:"true"`
	EmailChangeNew   string `json:"email_change_new" split_words:"true"`
}

type CORSConfiguration struct {
	AllowedHeaders []string `json:"allowed_headers" split_words:"true"`
}

func (c *CORSConfiguration) AllAllowedHeaders(defaults []string) []string {
	set := make(map[string]bool)
	for _, header := range defaults {
		set[header] = true
	}

	var result []string
	result = append(result, defaults...)

	for _, header := range c.AllowedHeaders {
		if !set[header] {
			result = append(result, header)
		}
		set[header] = true
	}

	return result
}

type GlobalConfiguration struct {
	API     APIConfiguration
	DB      DBConfiguration
	Logging LoggingConfig `envconfig:"LOG"`
	SMTP    SMTPConfiguration

	RateLimitHeader string  `split_words:"true"`
	RateLimitToken  float64 `split_words:"true" default:"150"`
	RateLimitVerify float64 `split_words:"true" default:"30"`

	SiteURL         string   `json:"site_url" split_words:"true" required:"true"`
	URIAllowList    []string `json:"uri_allow_list" split_words:"true"`
	URIAllowListMap map[string]glob.Glob `json:"-"`

	JWT          JWTConfiguration          `json:"jwt"`
	OAuth        OAuthConfiguration        `json:"oauth"`
	Mailer       MailerConfiguration       `json:"mailer"`
	Verification VerificationConfiguration `json:"verification"`
	CORS         CORSConfiguration         `json:"cors"`
}

// LoadGlobal reads configuration from the environment, optionally overlaid
// with a dotenv file.
func LoadGlobal(filename string) (*GlobalConfiguration, error) {
	if err := loadEnvironment(filename); err != nil {
		return nil, err
	}

	config := new(GlobalConfiguration)
	if err := envconfig.Process("f3auth", config); err != nil {
		return nil, err
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvironment(filename string) error {
	var err error
	if filename != "" {
		err = godotenv.Overload(filename)
	} else {
		err = godotenv.Load()
		// handle if .env file does not exist, this is OK
		if os.IsNotExist(err) {
			return nil
		}
	}
	return err
}

// ApplyDefaults fills derived fields after envconfig processing.
func (config *GlobalConfiguration) ApplyDefaults() {
	if config.JWT.Issuer == "" {
		config.JWT.Issuer = config.SiteURL
	}

	if config.SMTP.AdminEmail == "" {
		config.SMTP.AdminEmail = "noreply@" + hostOf(config.SiteURL)
	}

	if config.URIAllowList == nil {
		config.URIAllowList = []string{}
	}
	config.URIAllowListMap = make(map[string]glob.Glob)
	for _, uri := range config.URIAllowList {
		g := glob.MustCompile(uri, '.', '/')
		config.URIAllowListMap[uri] = g
	}
}

func (c *GlobalConfiguration) Validate() error {
	validatables := []interface {
		Validate() error
	}{
		&c.API,
		&c.DB,
		&c.SMTP,
		&c.OAuth,
		&c.Verification,
	}

	for _, validatable := range validatables {
		if err := validatable.Validate(); err != nil {
			return err
		}
	}

	if _, err := url.ParseRequestURI(c.SiteURL); err != nil {
		return err
	}
	if c.JWT.Secret == "" {
		return errors.New("conf: JWT secret is required")
	}

	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(rawURL, "https://")
	}
	return u.Hostname()
}
