package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/smtp-send/internal/application"
	"github.com/eugenenazirov/smtp-send/internal/config"
	"github.com/eugenenazirov/smtp-send/internal/logging"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

var signalNotify = signal.Notify

func main() {
	ctx, stop := notifyContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stdin, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, sends one email (or tests the connection) and returns the
// process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer) int {
	kingpinApp := kingpin.New("smtp-send", "Send a certificate renewal notification email through an SMTP server")
	kingpinApp.UsageWriter(stderr)
	kingpinApp.ErrorWriter(stderr)

	configFile := kingpinApp.Flag("config", "Path to the mail configuration file (KEY=value lines, or .yaml)").Required().String()
	to := kingpinApp.Flag("to", "Recipient email address").Required().String()
	subject := kingpinApp.Flag("subject", "Email subject").Required().String()
	body := kingpinApp.Flag("body", "Email body").String()
	bodyFile := kingpinApp.Flag("body-file", "Read the email body from this file").String()
	testOnly := kingpinApp.Flag("test", "Only test the SMTP connection and login").Bool()
	fromName := kingpinApp.Flag("from-name", "Sender display name (overrides SMTP_FROM_NAME)").String()
	timeout := kingpinApp.Flag("timeout", "Dial and command timeout (overrides SMTP_TIMEOUT)").Duration()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").Default("info").String()
	logFormat := kingpinApp.Flag("log-format", "Log format").Default(logging.FormatJSON).Enum(logging.FormatJSON, logging.FormatConsole)

	if _, err := kingpinApp.Parse(args); err != nil {
		kingpinApp.Errorf("%s, try --help", err)
		return exitFailure
	}

	logger, err := logging.New(logging.Options{Level: *logLevel, Format: *logFormat})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return exitFailure
	}
	defer func() {
		_ = logger.Sync()
	}()

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *fromName != "" {
		overrides.FromName = fromName
	}

	if *timeout > 0 {
		overrides.Timeout = timeout
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		logger.Error("failed to load configuration", zap.Error(err))
		return exitFailure
	}
	logger.Info("configuration loaded", zap.String("path", *configFile))

	app := application.New(cfg, logger)

	if *testOnly {
		return exitCode(app.TestConnection(ctx))
	}

	text, err := readBody(*body, *bodyFile, stdin)
	if err != nil {
		logger.Error("failed to read email body", zap.Error(err))
		return exitFailure
	}

	return exitCode(app.Send(ctx, application.Request{
		To:      *to,
		Subject: *subject,
		Body:    text,
	}))
}

// readBody returns the body from bodyFile, then body, then stdin.
func readBody(body, bodyFile string, stdin io.Reader) (string, error) {
	if bodyFile != "" {
		data, err := os.ReadFile(bodyFile)
		if err != nil {
			return "", fmt.Errorf("read body file: %w", err)
		}
		return string(data), nil
	}

	if body != "" {
		return body, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func exitCode(ok bool) int {
	if ok {
		return exitSuccess
	}
	return exitFailure
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(quit)
		cancel()
	}
}
