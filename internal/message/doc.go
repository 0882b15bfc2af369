// Package message composes the single plain-text notification email sent by
// smtp-send. Header encoding and MIME layout are delegated to gomail; this
// package owns address validation and the Message-ID scheme.
package message
