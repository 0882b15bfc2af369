// Package smtptest runs an in-process SMTP server for tests. The backend
// records the last accepted message together with the credentials and SASL
// mechanism the client used.
package smtptest

import (
	"io"
	"sync"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

var errAuthFailed = &smtp.SMTPError{
	Code:         535,
	EnhancedCode: smtp.EnhancedCode{5, 7, 8},
	Message:      "Authentication credentials invalid",
}

var errUnknownMechanism = &smtp.SMTPError{
	Code:         504,
	EnhancedCode: smtp.EnhancedCode{5, 7, 4},
	Message:      "Unsupported authentication mechanism",
}

// Config controls what the backend advertises and accepts.
type Config struct {
	// AuthMechanisms lists the SASL mechanisms offered in EHLO. Empty disables AUTH.
	AuthMechanisms []string

	AcceptedUsername string
	AcceptedPassword string

	// FailOnDataFn, when set, is returned from DATA instead of accepting the message.
	FailOnDataFn func() error
}

// Message is a message received by the backend.
type Message struct {
	AuthMech string
	Identity string
	Username string
	Password string

	From     string
	To       []string
	Contents string
}

// Backend implements smtp.Backend.
type Backend struct {
	cfg Config

	mu       sync.Mutex
	last     *Message
	sessions int
}

// NewBackend creates a Backend with cfg.
func NewBackend(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// NewSession implements smtp.Backend.
func (b *Backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	return &session{backend: b, msg: &Message{}}, nil
}

// LastMessage returns the most recently accepted message, or nil.
func (b *Backend) LastMessage() *Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Sessions returns how many sessions have been started.
func (b *Backend) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions
}

// Reset forgets the last message.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = nil
}

func (b *Backend) checkCredentials(username, password string) error {
	if username != b.cfg.AcceptedUsername || password != b.cfg.AcceptedPassword {
		return errAuthFailed
	}
	return nil
}

type session struct {
	backend *Backend
	msg     *Message
}

var _ smtp.AuthSession = (*session)(nil)

func (s *session) AuthMechanisms() []string {
	return s.backend.cfg.AuthMechanisms
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	switch mech {
	case sasl.Plain:
		return sasl.NewPlainServer(func(identity, username, password string) error {
			s.record(mech, identity, username, password)
			return s.backend.checkCredentials(username, password)
		}), nil
	case sasl.Login:
		return sasl.NewLoginServer(func(username, password string) error {
			s.record(mech, "", username, password)
			return s.backend.checkCredentials(username, password)
		}), nil
	default:
		return nil, errUnknownMechanism
	}
}

func (s *session) record(mech, identity, username, password string) {
	s.msg.AuthMech = mech
	s.msg.Identity = identity
	s.msg.Username = username
	s.msg.Password = password
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.msg.From = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.msg.To = append(s.msg.To, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	if fn := s.backend.cfg.FailOnDataFn; fn != nil {
		return fn()
	}

	contents, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	msg := *s.msg
	msg.To = append([]string(nil), s.msg.To...)
	msg.Contents = string(contents)

	s.backend.mu.Lock()
	s.backend.last = &msg
	s.backend.mu.Unlock()
	return nil
}

func (s *session) Reset() {
	s.msg.From = ""
	s.msg.To = nil
}

func (*session) Logout() error {
	return nil
}
