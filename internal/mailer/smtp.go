package mailer

import (
	gomail "gopkg.in/gomail.v2"
)

// smtpMailClient delivers rendered messages over SMTP.
type smtpMailClient struct {
	Host       string
	Port       int
	User       string
	Pass       string
	From       string
	SenderName string
}

func (s *smtpMailClient) Mail(to, subjectTemplate, bodyTemplate string, templateData map[string]interface{}) error {
	subject, err := renderTemplate("subject", subjectTemplate, templateData)
	if err != nil {
		return err
	}
	body, err := renderTemplate("body", bodyTemplate, templateData)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.From, s.SenderName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	dialer := gomail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	return dialer.DialAndSend(msg)
}
