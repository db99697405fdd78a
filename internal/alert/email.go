package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"

	"github.com/bauer-group/nocodb-backup/internal/config"
)

// EmailChannel sends plain-text mail over SMTP, with STARTTLS or
// implicit TLS depending on config.
type EmailChannel struct {
	cfg config.EmailConfig
}

func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, ev Event) error {
	if c.cfg.Host == "" || len(c.cfg.To) == 0 {
		return fmt.Errorf("email channel not configured")
	}
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	msg := c.buildMessage(ev)

	if c.cfg.SSL {
		return c.sendImplicitTLS(addr, msg)
	}
	return c.sendStartTLS(addr, msg)
}

func (c *EmailChannel) sendStartTLS(addr string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if c.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host}); err != nil {
				return err
			}
		}
	}
	return c.deliver(client, msg)
}

func (c *EmailChannel) sendImplicitTLS(addr string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: c.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()
	return c.deliver(client, msg)
}

func (c *EmailChannel) deliver(client *smtp.Client, msg []byte) error {
	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(c.cfg.From); err != nil {
		return err
	}
	for _, to := range c.cfg.To {
		if err := client.Rcpt(to); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (c *EmailChannel) buildMessage(ev Event) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", c.cfg.FromName, c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", ev.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(ev.Message)
	b.WriteString("\r\n")

	if len(ev.Details) > 0 {
		b.WriteString("\r\n")
		keys := make([]string, 0, len(ev.Details))
		for k := range ev.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\r\n", k, ev.Details[k])
		}
	}
	return []byte(b.String())
}
