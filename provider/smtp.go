package provider

import (
	"context"
	"encoding/json"

	"github.com/wneessen/go-mail"
)

// smtpConfig is the decrypted credential shape for the SMTP provider.
type smtpConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Encryption string `json:"encryption"` // "ssl_tls", "starttls" or ""
}

// emailPayload is the tenant-submitted payload shape for the email channel.
type emailPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// SMTPAdapter delivers email-channel messages over SMTP using go-mail.
// Provider type "smtp", channel "email".
type SMTPAdapter struct {
	decryptor Decryptor
}

// NewSMTPAdapter creates an SMTP adapter using the given credential decryptor.
func NewSMTPAdapter(decryptor Decryptor) *SMTPAdapter {
	return &SMTPAdapter{decryptor: decryptor}
}

// Send performs exactly one SMTP transaction for the message.
func (a *SMTPAdapter) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	plaintext, perr := decryptConfig(a.decryptor, params.Credentials)
	if perr != nil {
		return nil, perr
	}

	var cfg smtpConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return nil, Permanent(CodeDecryptFailed, "unusable smtp credential config: %v", err)
	}
	if cfg.Host == "" {
		return nil, Permanent(CodeDecryptFailed, "smtp credential config missing host")
	}

	var payload emailPayload
	if err := json.Unmarshal([]byte(params.Payload), &payload); err != nil {
		return nil, Permanent(CodeInvalidPayload, "unparseable email payload: %v", err)
	}
	if payload.Subject == "" {
		return nil, Permanent(CodeInvalidPayload, "email payload missing subject")
	}
	if payload.Text == "" && payload.HTML == "" {
		return nil, Permanent(CodeInvalidPayload, "email payload missing text and html body")
	}

	m := mail.NewMsg()
	if err := m.From(params.Identity); err != nil {
		return nil, Permanent(CodeInvalidIdentity, "invalid sender identity %q: %v", params.Identity, err)
	}
	if err := m.To(params.Recipient); err != nil {
		return nil, Permanent(CodeInvalidRecipient, "invalid recipient %q: %v", params.Recipient, err)
	}
	m.Subject(payload.Subject)
	if payload.Text != "" {
		m.SetBodyString(mail.TypeTextPlain, payload.Text)
	}
	if payload.HTML != "" {
		if payload.Text == "" {
			m.SetBodyString(mail.TypeTextHTML, payload.HTML)
		} else {
			m.AddAlternativeString(mail.TypeTextHTML, payload.HTML)
		}
	}
	if params.IdempotencyKey != "" {
		m.SetMessageIDWithValue(params.IdempotencyKey)
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicyFor(cfg.Encryption)),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, Permanent(CodeDecryptFailed, "unusable smtp credential config: %v", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		// SMTP failures are dominated by connectivity and greylisting;
		// retry rather than lose the message.
		return nil, Transient(CodeServiceUnavailable, "smtp send failed: %v", err)
	}

	return &SendResult{ProviderRef: m.GetMessageID()}, nil
}

func tlsPolicyFor(encryption string) mail.TLSPolicy {
	switch encryption {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}
