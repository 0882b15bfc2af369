package mailer

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Security selects how the connection to the server is protected.
type Security int

const (
	// SecurityNone keeps the session in plain text.
	SecurityNone Security = iota
	// SecurityStartTLS upgrades a plain connection with STARTTLS.
	SecurityStartTLS
	// SecurityImplicitTLS performs the TLS handshake right after dialing (SMTPS, usually port 465).
	SecurityImplicitTLS
)

func (s Security) String() string {
	switch s {
	case SecurityNone:
		return "none"
	case SecurityStartTLS:
		return "starttls"
	case SecurityImplicitTLS:
		return "ssl"
	default:
		return "unknown"
	}
}

// SecurityFor maps the SSL/TLS switches onto a Security mode. Implicit TLS
// wins when both are set.
func SecurityFor(useSSL, useTLS bool) Security {
	switch {
	case useSSL:
		return SecurityImplicitTLS
	case useTLS:
		return SecurityStartTLS
	default:
		return SecurityNone
	}
}

// Settings describes a single SMTP session.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	Security Security
	// HeloName is announced with EHLO. Empty means "localhost".
	HeloName string
	// Timeout bounds the dial and every SMTP command.
	Timeout time.Duration
	TLS     TLSSettings
}

// TLSSettings tunes certificate verification for STARTTLS and implicit TLS.
type TLSSettings struct {
	// ServerName overrides the host name used for verification.
	ServerName string
	// CAFile is a PEM bundle appended to the system roots.
	CAFile             string
	InsecureSkipVerify bool
}

// Addr returns host:port.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Settings) validate() error {
	if s.Host == "" || s.Username == "" || s.Password == "" {
		return ErrIncompleteSettings
	}
	return nil
}

func (s Settings) tlsConfig() (*tls.Config, error) {
	serverName := s.TLS.ServerName
	if serverName == "" {
		serverName = s.Host
	}

	cfg := &tls.Config{
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: s.TLS.InsecureSkipVerify, //nolint:gosec
	}

	if s.TLS.CAFile != "" {
		pem, err := os.ReadFile(s.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", s.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}
