package verification

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/mailer"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/ratelimit"
	"github.com/F3-Nation/f3-nation-auth/internal/storage"
)

// StoreProvider keeps codes in the database and delivers them by mail.
type StoreProvider struct {
	config      *conf.GlobalConfiguration
	db          *storage.Connection
	mailer      mailer.Mailer
	sendLimiter *ratelimit.KeyedLimiter
}

func NewStoreProvider(globalConfig *conf.GlobalConfiguration, db *storage.Connection, m mailer.Mailer) *StoreProvider {
	return &StoreProvider{
		config:      globalConfig,
		db:          db,
		mailer:      m,
		sendLimiter: ratelimit.NewKeyedLimiter(globalConfig.Verification.SendRate),
	}
}

func (p *StoreProvider) SendCode(ctx context.Context, email, callbackURL string) error {
	if !p.sendLimiter.Allow(strings.ToLower(email)) {
		return ErrSendRateLimited
	}

	conn := p.db.WithContext(ctx)

	_, code, err := models.CreateEmailCode(conn, email, p.config.Verification.CodeExp)
	if err != nil {
		return err
	}

	// The noop mail client means no SMTP is configured, so surface the code
	// in the log for local development.
	if p.config.SMTP.Host == "" {
		logrus.WithField("email", email).Infof("verification code: %s", code)
	}

	return p.mailer.VerificationCodeMail(email, code, p.magicLink(email, code, callbackURL))
}

func (p *StoreProvider) VerifyCode(ctx context.Context, email, code string, consume bool) (bool, error) {
	conn := p.db.WithContext(ctx)
	return models.VerifyEmailCode(conn, email, code, consume, p.config.Verification.MaxAttempts)
}

// magicLink builds the one-click sign-in link the code ships inside. The
// link is always anchored at the site URL; the callback only rides along as
// a query parameter, so the plaintext code never points at a foreign host.
func (p *StoreProvider) magicLink(email, code, callbackURL string) string {
	path := p.config.Mailer.URLPaths.VerificationCode
	if path == "" {
		path = "/login/email/verify"
	}

	params := map[string]string{
		"email": email,
		"code":  code,
	}
	if callbackURL != "" {
		params["callbackUrl"] = callbackURL
	}

	link, err := mailer.BuildLink(p.config.SiteURL, path, params)
	if err != nil {
		return ""
	}
	return link
}
