package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eugenenazirov/smtp-send/internal/config"
	"github.com/eugenenazirov/smtp-send/internal/mailer"
	"github.com/eugenenazirov/smtp-send/internal/message"
)

// ErrExternalSMTPDisabled is returned by a send when USE_EXTERNAL_SMTP is not true.
var ErrExternalSMTPDisabled = errors.New("external SMTP is disabled, set USE_EXTERNAL_SMTP=true in the config file")

// Request describes a single notification email.
type Request struct {
	To      string
	Subject string
	Body    string
}

// App encapsulates the application dependencies.
type App struct {
	cfg     config.Config
	builder *message.Builder
	sender  *mailer.Sender
	logger  *zap.Logger
}

// Option configures App behaviour.
type Option func(*App)

// WithBuilder overrides the message builder, primarily for tests.
func WithBuilder(builder *message.Builder) Option {
	return func(a *App) {
		a.builder = builder
	}
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	app := &App{
		cfg:     cfg,
		builder: message.NewBuilder(),
		sender:  mailer.New(NewSettings(cfg), logger.Named("smtp")),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// NewSettings maps the resolved configuration onto SMTP session settings.
func NewSettings(cfg config.Config) mailer.Settings {
	return mailer.Settings{
		Host:     cfg.Server,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		Security: mailer.SecurityFor(cfg.UseSSL, cfg.UseTLS),
		HeloName: cfg.HeloName,
		Timeout:  cfg.Timeout,
		TLS: mailer.TLSSettings{
			ServerName:         cfg.TLSServerName,
			CAFile:             cfg.TLSCAFile,
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}
}

// Send delivers req and reports whether it succeeded. Failures are logged.
func (a *App) Send(ctx context.Context, req Request) bool {
	if err := a.send(ctx, req); err != nil {
		a.logFailure("failed to send email", err)
		return false
	}
	a.logger.Info("email sent", zap.String("to", req.To))
	return true
}

func (a *App) send(ctx context.Context, req Request) error {
	if !a.cfg.UseExternalSMTP {
		return ErrExternalSMTPDisabled
	}

	msg, err := a.builder.Build(message.Draft{
		From:     a.cfg.SenderAddress(),
		FromName: a.cfg.FromName,
		To:       req.To,
		Subject:  req.Subject,
		Body:     req.Body,
	})
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	a.logger.Debug("message built",
		zap.String("message_id", msg.ID()),
		zap.String("from", msg.Sender()),
	)

	return a.sender.Send(ctx, msg)
}

// TestConnection connects, authenticates and disconnects without sending.
func (a *App) TestConnection(ctx context.Context) bool {
	settings := a.sender.Settings()
	a.logger.Info("testing SMTP connection",
		zap.String("server", settings.Addr()),
		zap.String("username", settings.Username),
		zap.Bool("use_ssl", a.cfg.UseSSL),
		zap.Bool("use_tls", a.cfg.UseTLS),
	)

	if err := a.sender.Verify(ctx); err != nil {
		a.logFailure("SMTP connection test failed", err)
		return false
	}

	a.logger.Info("SMTP connection test succeeded")
	return true
}

// logFailure logs err with a hint matching its category.
func (a *App) logFailure(msg string, err error) {
	var hint string
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		hint = "operation interrupted"
	case errors.Is(err, mailer.ErrAuthentication):
		hint = "check that the username and password are correct"
	case errors.Is(err, mailer.ErrConnection):
		hint = "check that the server address and port are correct"
	case errors.Is(err, mailer.ErrIncompleteSettings):
		hint = "check the SMTP server, username and password in the config file"
	case errors.Is(err, ErrExternalSMTPDisabled), errors.Is(err, message.ErrNoSender):
		hint = "check the config file"
	case errors.Is(err, mailer.ErrDelivery):
		hint = "the SMTP server rejected the message"
	default:
		hint = "unexpected error"
	}

	a.logger.Error(msg, zap.Error(err), zap.String("hint", hint))
}
