package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/otiai10/slackverify/internal/config"
	"github.com/otiai10/slackverify/internal/dispatch"
	"github.com/otiai10/slackverify/internal/receiver"
	"github.com/otiai10/slackverify/internal/signature"
	"github.com/otiai10/slackverify/internal/version"
)

// Exit codes. verify keeps "did not match" and "could not decode" apart.
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitMalformed = 3
)

const usage = `usage: slackverify <command> [flags]

commands:
  serve      run the verifying receiver
  sign       print the v0 signature of a body
  verify     check a v0 signature against a body
  send       POST a signed body to an endpoint
  challenge  check that an endpoint answers signed url_verification requests
  version    print the build version
`

func main() {
	// Load .env.localdev file if it exists (for local development)
	// Silently ignore if file doesn't exist (production uses real env vars)
	_ = godotenv.Load(".env.localdev")

	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "serve":
		return runServe(args, stderr)
	case "sign":
		return runSign(args, stdin, stdout, stderr)
	case "verify":
		return runVerify(args, stdin, stdout, stderr)
	case "send":
		return runSend(args, stdin, stdout, stderr)
	case "challenge":
		return runChallenge(args, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return exitOK
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file (default: configure from environment)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitFailure
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	endpoints := make([]receiver.Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		secret := ep.ResolveSecret()
		endpoints = append(endpoints, receiver.Endpoint{Name: ep.Name, Path: ep.Path, Secret: secret})
		logger.Info("endpoint configured",
			zap.String("name", ep.Name),
			zap.String("path", ep.Path),
			zap.String("secret_fingerprint", config.SecretFingerprint(string(secret))),
		)
	}

	router := receiver.NewRouter(receiver.RouterConfig{
		Endpoints:    endpoints,
		Logger:       logger,
		Metrics:      receiver.NewMetrics(),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	server := receiver.NewServer(cfg.Server.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("slackverify listening", zap.String("addr", server.Addr()), zap.String("version", version.String()))
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			return exitFailure
		}
		return exitOK
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		return exitFailure
	}
	return exitOK
}

func runSign(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secretEnv := fs.String("secret-env", config.DefaultSecretEnv, "environment variable holding the signing secret")
	timestamp := fs.Int64("timestamp", 0, "request timestamp in Unix seconds (default: now)")
	bodyFile := fs.String("body-file", "-", "file with the raw request body, - for stdin")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	secret, body, err := loadInputs(*secretEnv, *bodyFile, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	ts := *timestamp
	if !flagSet(fs, "timestamp") {
		ts = time.Now().Unix()
	}

	fmt.Fprintf(stdout, "%s: %d\n%s: %s\n",
		receiver.TimestampHeader, ts,
		receiver.SignatureHeader, signature.Sign(secret, body, ts))
	return exitOK
}

func runVerify(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secretEnv := fs.String("secret-env", config.DefaultSecretEnv, "environment variable holding the signing secret")
	timestamp := fs.String("timestamp", "", "value of X-Slack-Request-Timestamp")
	sig := fs.String("signature", "", "value of X-Slack-Signature")
	bodyFile := fs.String("body-file", "-", "file with the raw request body, - for stdin")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *timestamp == "" || *sig == "" {
		fmt.Fprintln(stderr, "-timestamp and -signature are required")
		return exitUsage
	}
	ts, err := strconv.ParseInt(*timestamp, 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "invalid timestamp %q\n", *timestamp)
		return exitUsage
	}

	secret, body, err := loadInputs(*secretEnv, *bodyFile, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	ok, err := signature.Verify(secret, body, ts, *sig)
	switch {
	case errors.Is(err, signature.ErrDecode):
		fmt.Fprintf(stdout, "malformed: %v\n", err)
		return exitMalformed
	case err != nil:
		fmt.Fprintln(stderr, err)
		return exitFailure
	case !ok:
		fmt.Fprintln(stdout, "mismatch")
		return exitFailure
	}
	fmt.Fprintln(stdout, "verified")
	return exitOK
}

func runSend(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "", "endpoint URL")
	secretEnv := fs.String("secret-env", config.DefaultSecretEnv, "environment variable holding the signing secret")
	bodyFile := fs.String("body-file", "-", "file with the request body, - for stdin")
	contentType := fs.String("content-type", "application/json", "Content-Type of the body")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	retries := fs.Int("retries", 0, "retries on 5xx, 408, 429 and connection errors")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *url == "" {
		fmt.Fprintln(stderr, "-url is required")
		return exitUsage
	}

	secret, body, err := loadInputs(*secretEnv, *bodyFile, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	retry := dispatch.DefaultRetryConfig()
	retry.MaxRetries = *retries
	sender := dispatch.NewRetryingSender(dispatch.NewSender(dispatch.WithTimeout(*timeout)), retry)

	result := sender.Send(context.Background(), dispatch.Target{URL: *url, Secret: secret}, body, *contentType)
	if !result.Success {
		fmt.Fprintf(stdout, "failed: %s (%v, %d retries)\n", result.ErrorMessage, result.ResponseTime, result.RetryCount)
		return exitFailure
	}
	fmt.Fprintf(stdout, "delivered: %d (%v, %d retries)\n", result.StatusCode, result.ResponseTime, result.RetryCount)
	return exitOK
}

func runChallenge(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("challenge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", "", "endpoint URL")
	secretEnv := fs.String("secret-env", config.DefaultSecretEnv, "environment variable holding the signing secret")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *url == "" {
		fmt.Fprintln(stderr, "-url is required")
		return exitUsage
	}

	secret := os.Getenv(*secretEnv)
	if secret == "" {
		fmt.Fprintf(stderr, "environment variable %s is empty\n", *secretEnv)
		return exitUsage
	}

	result := dispatch.NewChallenger(*timeout).VerifyURL(context.Background(), *url, []byte(secret))
	if !result.Success {
		fmt.Fprintf(stdout, "failed: %s (%v)\n", result.ErrorMessage, result.ResponseTime)
		return exitFailure
	}
	fmt.Fprintf(stdout, "ok (%v)\n", result.ResponseTime)
	return exitOK
}

// loadInputs reads the secret from env and the body verbatim from a file or stdin.
func loadInputs(secretEnv, bodyFile string, stdin io.Reader) ([]byte, []byte, error) {
	secret := os.Getenv(secretEnv)
	if secret == "" {
		return nil, nil, fmt.Errorf("environment variable %s is empty", secretEnv)
	}

	var body []byte
	var err error
	if bodyFile == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(bodyFile)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}
	return []byte(secret), body, nil
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
