package mailer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
)

type recordingMailClient struct {
	to      string
	subject string
	body    string
}

func (r *recordingMailClient) Mail(to, subjectTemplate, bodyTemplate string, templateData map[string]interface{}) error {
	body, err := renderTemplate("body", bodyTemplate, templateData)
	if err != nil {
		return err
	}
	r.to = to
	r.subject = subjectTemplate
	r.body = body
	return nil
}

func testMailer() (*TemplateMailer, *recordingMailClient) {
	client := &recordingMailClient{}
	config := &conf.GlobalConfiguration{
		SiteURL: "https://f3nation.example.com",
	}
	config.Verification.CodeExp = 10 * time.Minute
	return &TemplateMailer{
		SiteURL: config.SiteURL,
		Config:  config,
		Mailer:  client,
	}, client
}

func TestVerificationCodeMail(t *testing.T) {
	m, client := testMailer()

	require.NoError(t, m.VerificationCodeMail("pax@example.com", "482913", "https://f3nation.example.com/sign-in"))
	assert.Equal(t, "pax@example.com", client.to)
	assert.Equal(t, "Your verification code", client.subject)
	assert.Contains(t, client.body, "482913")
	assert.Contains(t, client.body, "10 minutes")
	assert.Contains(t, client.body, "https://f3nation.example.com/sign-in")
}

func TestVerificationCodeMailSubjectOverride(t *testing.T) {
	m, client := testMailer()
	m.Config.Mailer.Subjects.VerificationCode = "Sign in to F3"

	require.NoError(t, m.VerificationCodeMail("pax@example.com", "100000", ""))
	assert.Equal(t, "Sign in to F3", client.subject)
	assert.NotContains(t, client.body, "continue in your browser")
}

func TestEmailChangeMails(t *testing.T) {
	m, client := testMailer()
	request := &models.EmailChangeRequest{
		CurrentEmail: "old@example.com",
		NewEmail:     "new@example.com",
	}

	require.NoError(t, m.EmailChangeOldMail(request, "123456", ""))
	assert.Equal(t, "old@example.com", client.to)
	assert.Contains(t, client.body, "old@example.com")
	assert.Contains(t, client.body, "new@example.com")
	assert.Contains(t, client.body, "123456")

	require.NoError(t, m.EmailChangeNewMail(request, "654321", ""))
	assert.Equal(t, "new@example.com", client.to)
	assert.Contains(t, client.body, "654321")
}

func TestValidateEmail(t *testing.T) {
	m, _ := testMailer()

	assert.NoError(t, m.ValidateEmail("pax@example.com"))
	assert.Error(t, m.ValidateEmail("not-an-email"))
}

func TestBuildLink(t *testing.T) {
	link, err := BuildLink("https://f3nation.example.com", "/profile/email", map[string]string{
		"requestId": "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://f3nation.example.com/profile/email?requestId=abc", link)
}
