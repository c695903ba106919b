package mailer

import (
	"bytes"
	"html/template"

	"github.com/badoux/checkmail"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
)

type MailClient interface {
	Mail(to, subjectTemplate, bodyTemplate string, templateData map[string]interface{}) error
}

// TemplateMailer renders the built-in templates and hands the result to a
// MailClient.
type TemplateMailer struct {
	SiteURL string
	Config  *conf.GlobalConfiguration
	Mailer  MailClient
}

const defaultVerificationCodeMail = `<h2>Your verification code</h2>

<p>Enter this code to sign in:</p>
<p style="font-size: 28px; letter-spacing: 6px"><strong>{{ .Code }}</strong></p>
<p>The code expires in {{ .Minutes }} minutes. If you did not request it, you can ignore this email.</p>
{{ if .Link }}<p>Or <a href="{{ .Link }}">continue in your browser</a>.</p>{{ end }}`

const defaultEmailChangeOldMail = `<h2>Confirm your email change</h2>

<p>You asked to change the email on your account from {{ .CurrentEmail }} to {{ .NewEmail }}.</p>
<p>Enter this code on your current email to approve the change:</p>
<p style="font-size: 28px; letter-spacing: 6px"><strong>{{ .Code }}</strong></p>
<p>The code expires in {{ .Minutes }} minutes. If you did not request this change, ignore this email and the request will lapse.</p>
{{ if .Link }}<p>Or <a href="{{ .Link }}">review the request</a>.</p>{{ end }}`

const defaultEmailChangeNewMail = `<h2>Verify your new email</h2>

<p>This address was requested as the new email for an account currently registered to {{ .CurrentEmail }}.</p>
<p>Enter this code to verify you own this address:</p>
<p style="font-size: 28px; letter-spacing: 6px"><strong>{{ .Code }}</strong></p>
<p>The code expires in {{ .Minutes }} minutes. If this was not you, ignore this email.</p>
{{ if .Link }}<p>Or <a href="{{ .Link }}">review the request</a>.</p>{{ end }}`

// ValidateEmail returns nil if the email is in a valid format.
func (m *TemplateMailer) ValidateEmail(email string) error {
	return checkmail.ValidateFormat(email)
}

// VerificationCodeMail sends a sign-in code to the given address.
func (m *TemplateMailer) VerificationCodeMail(email, otp, magicLink string) error {
	return m.Mailer.Mail(
		email,
		withDefault(m.Config.Mailer.Subjects.VerificationCode, "Your verification code"),
		defaultVerificationCodeMail,
		map[string]interface{}{
			"SiteURL": m.Config.SiteURL,
			"Code":    otp,
			"Link":    magicLink,
			"Minutes": int(m.Config.Verification.CodeExp.Minutes()),
		},
	)
}

// EmailChangeOldMail sends the approval code to the current address of an
// email change request.
func (m *TemplateMailer) EmailChangeOldMail(request *models.EmailChangeRequest, otp, magicLink string) error {
	return m.Mailer.Mail(
		request.CurrentEmail,
		withDefault(m.Config.Mailer.Subjects.EmailChangeOld, "Confirm your email change"),
		defaultEmailChangeOldMail,
		map[string]interface{}{
			"SiteURL":      m.Config.SiteURL,
			"CurrentEmail": request.CurrentEmail,
			"NewEmail":     request.NewEmail,
			"Code":         otp,
			"Link":         magicLink,
			"Minutes":      int(m.Config.Verification.CodeExp.Minutes()),
		},
	)
}

// EmailChangeNewMail sends the ownership code to the address a user wants to
// change to.
func (m *TemplateMailer) EmailChangeNewMail(request *models.EmailChangeRequest, otp, magicLink string) error {
	return m.Mailer.Mail(
		request.NewEmail,
		withDefault(m.Config.Mailer.Subjects.EmailChangeNew, "Verify your new email"),
		defaultEmailChangeNewMail,
		map[string]interface{}{
			"SiteURL":      m.Config.SiteURL,
			"CurrentEmail": request.CurrentEmail,
			"NewEmail":     request.NewEmail,
			"Code":         otp,
			"Link":         magicLink,
			"Minutes":      int(m.Config.Verification.CodeExp.Minutes()),
		},
	)
}

func renderTemplate(name, tpl string, data map[string]interface{}) (string, error) {
	parsed, err := template.New(name).Parse(tpl)
	if err != nil {
		return "", errors.Wrapf(err, "parsing %s template", name)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "rendering %s template", name)
	}
	return buf.String(), nil
}
