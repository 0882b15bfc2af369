package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks out every recognised key so the host environment cannot
// leak into a test. t.Setenv restores the original values on cleanup.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		KeyUseExternalSMTP, KeyServer, KeyPort, KeyUsername, KeyPassword,
		KeyUseTLS, KeyUseSSL, KeyFromEmail, KeyFromName, KeyHelo, KeyTimeout,
		KeyTLSSkipVerify, KeyTLSCAFile, KeyTLSServerName,
	}
	for _, key := range keys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %d, got %d", defaultPort, cfg.Port)
	}
	if !cfg.UseTLS || cfg.UseSSL {
		t.Fatalf("expected STARTTLS by default, got tls=%v ssl=%v", cfg.UseTLS, cfg.UseSSL)
	}
	if cfg.UseExternalSMTP {
		t.Fatalf("external SMTP must be disabled by default")
	}
	if cfg.FromName != defaultFromName {
		t.Fatalf("unexpected from name: %q", cfg.FromName)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Timeout)
	}
	if cfg.HeloName == "" {
		t.Fatalf("expected a HELO name")
	}
}

func TestLoadShellFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "mail.conf", `# notification mail settings
USE_EXTERNAL_SMTP=true
SMTP_SERVER="smtp.exmail.qq.com"
SMTP_PORT=465
export SMTP_USERNAME='certs@example.com'
SMTP_PASSWORD='s3cr$t'

SMTP_USE_SSL=TRUE
SMTP_USE_TLS=false
SMTP_FROM_NAME=
SMTP_TIMEOUT=5s
`)

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.UseExternalSMTP {
		t.Fatalf("expected external SMTP enabled")
	}
	if cfg.Server != "smtp.exmail.qq.com" {
		t.Fatalf("unexpected server %q", cfg.Server)
	}
	if cfg.Port != 465 {
		t.Fatalf("unexpected port %d", cfg.Port)
	}
	if cfg.Username != "certs@example.com" {
		t.Fatalf("unexpected username %q", cfg.Username)
	}
	if cfg.Password != "s3cr$t" {
		t.Fatalf("single-quoted password must stay literal, got %q", cfg.Password)
	}
	if !cfg.UseSSL || cfg.UseTLS {
		t.Fatalf("unexpected tls=%v ssl=%v", cfg.UseTLS, cfg.UseSSL)
	}
	if cfg.FromName != "" {
		t.Fatalf("empty SMTP_FROM_NAME must clear the default, got %q", cfg.FromName)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Timeout)
	}
	if got := cfg.SenderAddress(); got != "certs@example.com" {
		t.Fatalf("expected sender to fall back to username, got %q", got)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "mail.yaml", `USE_EXTERNAL_SMTP: true
SMTP_SERVER: mail.example.org
SMTP_PORT: 2525
SMTP_FROM_EMAIL: noreply@example.org
`)

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.UseExternalSMTP || cfg.Server != "mail.example.org" || cfg.Port != 2525 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.SenderAddress(); got != "noreply@example.org" {
		t.Fatalf("unexpected sender %q", got)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv(KeyServer, "env.example.com")
	t.Setenv(KeyUsername, "env-user")
	t.Setenv(KeyTimeout, "not-a-duration")

	path := writeFile(t, "mail.conf", "SMTP_SERVER=file.example.com\nSMTP_FROM_NAME=Renewal Bot\n")
	fromName := "CLI Name"
	timeout := 3 * time.Second

	cfg, err := Load(&CLIOverrides{
		ConfigFile: path,
		FromName:   &fromName,
		Timeout:    &timeout,
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server != "file.example.com" {
		t.Fatalf("file must override env, got %q", cfg.Server)
	}
	if cfg.Username != "env-user" {
		t.Fatalf("env must fill keys missing from the file, got %q", cfg.Username)
	}
	if cfg.FromName != "CLI Name" {
		t.Fatalf("CLI must override file, got %q", cfg.FromName)
	}
	if cfg.Timeout != timeout {
		t.Fatalf("CLI timeout not applied, got %s", cfg.Timeout)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "invalid port", content: "SMTP_PORT=abc\n", wantErr: "SMTP_PORT"},
		{name: "empty port", content: "SMTP_PORT=\n", wantErr: "SMTP_PORT"},
		{name: "port out of range", content: "SMTP_PORT=70000\n", wantErr: "between 1 and 65535"},
		{name: "invalid timeout", content: "SMTP_TIMEOUT=soon\n", wantErr: "SMTP_TIMEOUT"},
		{name: "zero timeout", content: "SMTP_TIMEOUT=0s\n", wantErr: "must be positive"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, "mail.conf", tc.content)
			_, err := Load(&CLIOverrides{ConfigFile: path})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(&CLIOverrides{ConfigFile: filepath.Join(t.TempDir(), "absent.conf")})
		if err == nil {
			t.Fatalf("expected error for missing file")
		}
	})
}

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "comments and quotes",
			input: "# comment\n\nA=1\nB=\"two words\"\nC='x=y'\n",
			want:  map[string]string{"A": "1", "B": "two words", "C": "x=y"},
		},
		{
			name:  "lines without assignment are skipped",
			input: "# mail\nUSE_EXTERNAL_SMTP=true\nSMTP_SERVER=smtp.example.com\nsome stray line\n",
			want:  map[string]string{"USE_EXTERNAL_SMTP": "true", "SMTP_SERVER": "smtp.example.com"},
		},
		{
			name:  "dollar signs stay literal",
			input: "SMTP_PASSWORD=\"Pa$SW0RD\"\nexport TOKEN=${HOME}x\nSINGLE='a$b'\n",
			want:  map[string]string{"SMTP_PASSWORD": "Pa$SW0RD", "TOKEN": "${HOME}x", "SINGLE": "a$b"},
		},
		{
			name:  "quoted spaces are kept",
			input: "SMTP_PASSWORD=\" secret \"\n",
			want:  map[string]string{"SMTP_PASSWORD": " secret "},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values, err := ParseEnv(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(values) != len(tc.want) {
				t.Fatalf("unexpected values: %v", values)
			}
			for k, v := range tc.want {
				got, ok := values.Lookup(k)
				if !ok || got != v {
					t.Fatalf("%s: expected %q, got %q (present=%v)", k, v, got, ok)
				}
			}
		})
	}

	values, err := ParseEnv(strings.NewReader("A=1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := values.Lookup("D"); ok {
		t.Fatalf("absent key reported as present")
	}
}

func TestLoadKeepsPasswordLiteral(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "mail.conf", `SMTP_SERVER= smtp.example.com
SMTP_USERNAME=certs@example.com
SMTP_PASSWORD=" Pa$SW0RD "
stray line left behind by an editor
`)

	cfg, err := Load(&CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Password != " Pa$SW0RD " {
		t.Fatalf("password must be kept verbatim, got %q", cfg.Password)
	}
	if cfg.Server != "smtp.example.com" {
		t.Fatalf("unexpected server %q", cfg.Server)
	}
}

func TestParseFlag(t *testing.T) {
	for _, v := range []string{"true", "TRUE", " True "} {
		if !parseFlag(v) {
			t.Fatalf("expected %q to be true", v)
		}
	}
	for _, v := range []string{"", "false", "1", "yes"} {
		if parseFlag(v) {
			t.Fatalf("expected %q to be false", v)
		}
	}
}
