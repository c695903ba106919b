package mailer

import (
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
)

// Mailer defines the interface a mailer must implement.
type Mailer interface {
	VerificationCodeMail(email, otp, magicLink string) error
	EmailChangeOldMail(request *models.EmailChangeRequest, otp, magicLink string) error
	EmailChangeNewMail(request *models.EmailChangeRequest, otp, magicLink string) error
	ValidateEmail(email string) error
}

// NewMailer returns a mailer backed by SMTP, or a noop when no SMTP host is
// configured (local development).
func NewMailer(globalConfig *conf.GlobalConfiguration) Mailer {
	var mailClient MailClient
	if globalConfig.SMTP.Host == "" {
		logrus.Infof("Noop mail client being used for %v", globalConfig.SiteURL)
		mailClient = &noopMailClient{}
	} else {
		mailClient = &smtpMailClient{
			Host:       globalConfig.SMTP.Host,
			Port:       globalConfig.SMTP.Port,
			User:       globalConfig.SMTP.User,
			Pass:       globalConfig.SMTP.Pass,
			From:       globalConfig.SMTP.AdminEmail,
			SenderName: globalConfig.SMTP.SenderName,
		}
	}

	return &TemplateMailer{
		SiteURL: globalConfig.SiteURL,
		Config:  globalConfig,
		Mailer:  mailClient,
	}
}

func withDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// BuildLink resolves a configured path against the site URL and appends
// query parameters, so emails always point back at the web frontend.
func BuildLink(siteURL, path string, params map[string]string) (string, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}

	link := base.ResolveReference(ref)
	v := link.Query()
	for key, val := range params {
		v.Set(key, val)
	}
	link.RawQuery = v.Encode()

	return link.String(), nil
}
