package mailer

import "errors"

var (
	// ErrIncompleteSettings is returned when the server, username or password is missing.
	ErrIncompleteSettings = errors.New("smtp server, username and password must be configured")
	// ErrConnection is returned when the server cannot be reached, greeted or upgraded to TLS.
	ErrConnection = errors.New("smtp connection failed")
	// ErrAuthentication is returned when the server rejects or cannot perform authentication.
	ErrAuthentication = errors.New("smtp authentication failed")
	// ErrDelivery is returned when the server rejects the sender, recipient or message data.
	ErrDelivery = errors.New("smtp delivery failed")
)
