package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// Envelope is a message ready for submission.
type Envelope interface {
	Sender() string
	Recipients() []string
	io.WriterTo
}

// Sender opens SMTP sessions described by Settings.
type Sender struct {
	cfg    Settings
	logger *zap.Logger
}

// New constructs a Sender.
func New(cfg Settings, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{cfg: cfg, logger: logger}
}

// Settings returns the session settings.
func (s *Sender) Settings() Settings {
	return s.cfg
}

// Verify connects, negotiates TLS, authenticates and quits without sending.
func (s *Sender) Verify(ctx context.Context) error {
	sess, err := s.open(ctx)
	if err != nil {
		return err
	}
	if err := sess.quit(); err != nil {
		return wrap(ctx, ErrConnection, "quit", err)
	}
	return nil
}

// Send submits msg in a fresh authenticated session.
func (s *Sender) Send(ctx context.Context, msg Envelope) error {
	sess, err := s.open(ctx)
	if err != nil {
		return err
	}

	if err := s.deliver(ctx, sess.client, msg); err != nil {
		sess.close()
		return err
	}

	// The server already accepted the message.
	if err := sess.quit(); err != nil {
		s.logger.Warn("failed to close SMTP session", zap.Error(err))
	}
	return nil
}

type session struct {
	client *smtp.Client
	stop   func() bool
}

// quit ends the session. The connection is closed even when the server
// rejects QUIT.
func (ss *session) quit() error {
	defer ss.stop()
	if err := ss.client.Quit(); err != nil {
		_ = ss.client.Close()
		return err
	}
	return nil
}

func (ss *session) close() {
	ss.stop()
	_ = ss.client.Close()
}

// open returns an authenticated session ready for MAIL FROM.
func (s *Sender) open(ctx context.Context) (*session, error) {
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if s.cfg.Security != SecurityNone {
		cfg, err := s.cfg.tlsConfig()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		tlsConfig = cfg
	}

	conn, err := s.dial(ctx, tlsConfig)
	if err != nil {
		return nil, wrap(ctx, ErrConnection, "dial "+s.cfg.Addr(), err)
	}
	s.logger.Info("connected to SMTP server",
		zap.String("addr", s.cfg.Addr()),
		zap.Stringer("security", s.cfg.Security),
	)

	client := smtp.NewClient(conn)
	client.CommandTimeout = s.cfg.Timeout
	client.SubmissionTimeout = s.cfg.Timeout

	sess := &session{
		client: client,
		stop:   context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}

	if err := s.handshake(ctx, client, tlsConfig); err != nil {
		sess.close()
		return nil, err
	}

	mech, err := s.authenticate(ctx, client)
	if err != nil {
		sess.close()
		return nil, err
	}
	s.logger.Info("authenticated",
		zap.String("username", s.cfg.Username),
		zap.String("mechanism", mech),
	)

	return sess, nil
}

func (s *Sender) dial(ctx context.Context, tlsConfig *tls.Config) (net.Conn, error) {
	d := &net.Dialer{Timeout: s.cfg.Timeout}
	if s.cfg.Security == SecurityImplicitTLS {
		td := &tls.Dialer{NetDialer: d, Config: tlsConfig}
		return td.DialContext(ctx, "tcp", s.cfg.Addr())
	}
	return d.DialContext(ctx, "tcp", s.cfg.Addr())
}

// handshake sends EHLO and, when configured, upgrades with STARTTLS.
func (s *Sender) handshake(ctx context.Context, c *smtp.Client, tlsConfig *tls.Config) error {
	helo := s.cfg.HeloName
	if helo == "" {
		helo = "localhost"
	}
	if err := c.Hello(helo); err != nil {
		return wrap(ctx, ErrConnection, "server handshake", err)
	}

	if s.cfg.Security != SecurityStartTLS {
		return nil
	}

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("%w: server does not advertise STARTTLS", ErrConnection)
	}
	if err := c.StartTLS(tlsConfig); err != nil {
		return wrap(ctx, ErrConnection, "starttls", err)
	}
	s.logger.Info("TLS enabled via STARTTLS")
	return nil
}

// authenticate picks PLAIN, then LOGIN, from the mechanisms the server offers.
func (s *Sender) authenticate(ctx context.Context, c *smtp.Client) (string, error) {
	ok, params := c.Extension("AUTH")
	if !ok {
		return "", fmt.Errorf("%w: server does not advertise AUTH", ErrAuthentication)
	}

	mech, client := s.saslClient(strings.Fields(params))
	if client == nil {
		return "", fmt.Errorf("%w: no supported mechanism among %q", ErrAuthentication, params)
	}

	if err := c.Auth(client); err != nil {
		return mech, wrap(ctx, ErrAuthentication, mech, err)
	}
	return mech, nil
}

func (s *Sender) saslClient(offered []string) (string, sasl.Client) {
	supports := func(mech string) bool {
		for _, m := range offered {
			if strings.EqualFold(m, mech) {
				return true
			}
		}
		return false
	}

	switch {
	case supports(sasl.Plain):
		return sasl.Plain, sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	case supports(sasl.Login):
		return sasl.Login, sasl.NewLoginClient(s.cfg.Username, s.cfg.Password)
	default:
		return "", nil
	}
}

func (s *Sender) deliver(ctx context.Context, c *smtp.Client, msg Envelope) error {
	if err := c.Mail(msg.Sender(), nil); err != nil {
		return wrap(ctx, ErrDelivery, "sender identification", err)
	}

	for _, rcpt := range msg.Recipients() {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return wrap(ctx, ErrDelivery, "recipient designation", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return wrap(ctx, ErrDelivery, "message transmission", err)
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return wrap(ctx, ErrDelivery, "write message", err)
	}
	// The final DATA reply arrives on Close.
	if err := w.Close(); err != nil {
		return wrap(ctx, ErrDelivery, "message transmission", err)
	}

	s.logger.Debug("message accepted", zap.Strings("recipients", msg.Recipients()))
	return nil
}

// wrap tags err with kind. A cancelled context takes precedence over the
// network error it caused.
func wrap(ctx context.Context, kind error, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %w", kind, op, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
