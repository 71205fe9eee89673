package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"leech-bot/internal/domain"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPReporter envia el aviso por correo al operador.
type SMTPReporter struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	to       string
	useTLS   bool
	sendMail sendMailFunc
}

func NewSMTPReporter(host string, port int, username, password, from, fromName, to string, useTLS bool) (*SMTPReporter, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("operator email is required")
	}
	if port == 0 {
		port = 587
	}
	return &SMTPReporter{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
		to:       to,
		useTLS:   useTLS,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *SMTPReporter) ReportForwardFailure(_ context.Context, ev domain.ForwardEvent, cause error) error {
	msg := buildMessage(s.from, s.fromName, s.to, failureSubject(ev), failureBody(ev, cause))
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if s.useTLS {
		return s.sendTLS(addr, auth, msg)
	}
	return s.sendMail(addr, auth, s.from, []string{s.to}, []byte(msg))
}

func (s *SMTPReporter) sendTLS(addr string, auth smtp.Auth, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: s.host,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(s.to); err != nil {
		return err
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
