package message

import "errors"

var (
	// ErrNoSender is returned when neither a from address nor a username is configured.
	ErrNoSender = errors.New("sender address not configured")
	// ErrInvalidAddress is returned when the sender or recipient cannot be parsed as an RFC 5322 address.
	ErrInvalidAddress = errors.New("invalid email address")
)
