package pipeline

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netsentry/netsentry/internal/config"
)

// dispatchTimeout bounds each channel delivery independently.
const dispatchTimeout = 30 * time.Second

// smtpTimeout bounds the whole SMTP conversation, dial included. A variable
// so tests can shrink it.
var smtpTimeout = dispatchTimeout

// sendMail is swappable for tests.
var sendMail = sendMailTimeout

// sendMailTimeout mirrors smtp.SendMail but dials with a timeout and puts a
// deadline on the connection, so a hung SMTP server cannot stall the
// pipeline goroutine.
func sendMailTimeout(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, smtpTimeout)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Now().Add(smtpTimeout)); err != nil {
		conn.Close()
		return err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// Dispatcher fans persisted alerts out to the configured notification
// channels. Delivery is best effort; failures are logged, never fatal.
type Dispatcher struct {
	cfg    config.DispatchConfig
	client *http.Client
}

// NewDispatcher creates a dispatcher for the given channel configuration.
func NewDispatcher(cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: dispatchTimeout},
	}
}

// Dispatch sends the alert to every enabled channel and reports per-channel
// success.
func (d *Dispatcher) Dispatch(ctx context.Context, alert NormalizedAlert, correlationID string) map[string]bool {
	results := make(map[string]bool)
	if d.cfg.WebhookURL != "" {
		results["webhook"] = d.sendWebhook(ctx, alert, correlationID)
	}
	if d.cfg.EmailEnabled {
		results["email"] = d.sendEmail(alert, correlationID)
	}
	return results
}

func (d *Dispatcher) sendWebhook(ctx context.Context, alert NormalizedAlert, correlationID string) bool {
	payload := map[string]interface{}{
		"title":          alert.Title,
		"description":    alert.Description,
		"severity":       string(alert.Severity),
		"source_tool":    alert.SourceTool,
		"category":       alert.Category,
		"device_ip":      alert.DeviceIP,
		"timestamp":      alert.Timestamp.UTC().Format(time.RFC3339),
		"correlation_id": correlationID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Webhook payload marshal failed")
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Webhook request build failed")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Webhook dispatch failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Msg("Webhook dispatch rejected")
		return false
	}
	log.Info().Str("title", alert.Title).Msg("Webhook dispatched")
	return true
}

func (d *Dispatcher) sendEmail(alert NormalizedAlert, correlationID string) bool {
	if correlationID == "" {
		correlationID = "N/A"
	}
	body := fmt.Sprintf(
		"Alert: %s\nSeverity: %s\nSource: %s\nCategory: %s\nDevice: %s\nTime: %s\nCorrelation: %s\n\nDescription:\n%s",
		alert.Title, alert.Severity, alert.SourceTool, alert.Category, alert.DeviceIP,
		alert.Timestamp.UTC().Format(time.RFC3339), correlationID, alert.Description)

	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", d.cfg.EmailFrom),
		fmt.Sprintf("To: %s", d.cfg.EmailTo),
		fmt.Sprintf("Subject: [NetSentry %s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", d.cfg.EmailSMTPHost, d.cfg.EmailSMTPPort)
	if err := sendMail(addr, nil, d.cfg.EmailFrom, []string{d.cfg.EmailTo}, []byte(msg)); err != nil {
		log.Error().Err(err).Msg("Email dispatch failed")
		return false
	}
	log.Info().Str("title", alert.Title).Msg("Email dispatched")
	return true
}
