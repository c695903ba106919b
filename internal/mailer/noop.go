package mailer

import (
	"github.com/sirupsen/logrus"
)

type noopMailClient struct{}

func (m *noopMailClient) Mail(to, subjectTemplate, bodyTemplate string, templateData map[string]interface{}) error {
	logrus.WithFields(logrus.Fields{
		"to":      to,
		"subject": subjectTemplate,
	}).Info("mail delivery skipped, no SMTP host configured")
	return nil
}
