package message

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// Draft holds the caller supplied parts of a message.
type Draft struct {
	From     string
	FromName string
	To       string
	Subject  string
	Body     string
}

// Message is a composed email together with its SMTP envelope.
type Message struct {
	from string
	to   string
	id   string
	msg  *gomail.Message
}

// Sender returns the envelope sender (MAIL FROM).
func (m *Message) Sender() string { return m.from }

// Recipients returns the envelope recipients (RCPT TO).
func (m *Message) Recipients() []string { return []string{m.to} }

// ID returns the Message-ID header value.
func (m *Message) ID() string { return m.id }

// WriteTo writes the RFC 5322 representation of the message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	return m.msg.WriteTo(w)
}

// Builder turns drafts into messages.
type Builder struct {
	clock func() time.Time
	pid   func() int
}

// BuilderOption configures Builder behaviour.
type BuilderOption func(*Builder)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.clock = clock
	}
}

// NewBuilder constructs a Builder stamping messages with the current time.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		clock: time.Now,
		pid:   os.Getpid,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates the draft addresses and composes a text/plain UTF-8 message.
func (b *Builder) Build(d Draft) (*Message, error) {
	if strings.TrimSpace(d.From) == "" {
		return nil, ErrNoSender
	}

	from, err := mail.ParseAddress(d.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q: %w", ErrInvalidAddress, d.From, err)
	}
	to, err := mail.ParseAddress(d.To)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q: %w", ErrInvalidAddress, d.To, err)
	}

	now := b.clock()
	id := b.messageID(now, from.Address)

	msg := gomail.NewMessage(gomail.SetCharset("UTF-8"), gomail.SetEncoding(gomail.QuotedPrintable))
	if name := strings.TrimSpace(d.FromName); name != "" {
		msg.SetAddressHeader("From", from.Address, name)
	} else {
		msg.SetHeader("From", from.Address)
	}
	msg.SetAddressHeader("To", to.Address, to.Name)
	msg.SetHeader("Subject", d.Subject)
	msg.SetDateHeader("Date", now)
	msg.SetHeader("Message-ID", id)
	msg.SetBody("text/plain", d.Body)

	return &Message{
		from: from.Address,
		to:   to.Address,
		id:   id,
		msg:  msg,
	}, nil
}

// messageID renders <timestamp.pid@domain> using the sender's domain.
func (b *Builder) messageID(now time.Time, sender string) string {
	domain := sender[strings.LastIndex(sender, "@")+1:]
	return fmt.Sprintf("<%s.%d@%s>", now.Format("20060102150405"), b.pid(), domain)
}
