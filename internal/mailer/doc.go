// Package mailer submits a composed message to an SMTP server.
//
// A session dials the server (optionally over implicit TLS), upgrades with
// STARTTLS when asked to, greets with EHLO and authenticates with PLAIN or
// LOGIN before either quitting (Verify) or transmitting a message (Send).
// Failures are wrapped with one of the package sentinels so callers can tell
// connection, authentication and delivery problems apart.
package mailer
