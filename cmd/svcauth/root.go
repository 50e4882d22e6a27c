package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/svcauth/go-svcauth"
	"github.com/svcauth/go-svcauth/certificate"
	"github.com/svcauth/go-svcauth/internal/config"
	"github.com/svcauth/go-svcauth/token"
)

// app carries the state shared by every subcommand once the root command's
// PersistentPreRunE has loaded the configuration.
type app struct {
	v          *viper.Viper
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New(), log: logrus.New()}

	cmd := &cobra.Command{
		Use:          "svcauth",
		Short:        "Issue and verify service credentials",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.String("project-id", "", "project whose identity tokens are verified")
	flags.String("public-key-url", "", "URL of the identity-token signing keys")
	flags.String("credentials-file", "", "service-account JSON file")
	flags.String("credentials-env", "", "environment variable holding the service-account JSON")
	flags.String("credentials-secret", "", "Secret Manager version holding the service-account JSON")
	flags.String("redis-addr", "", "share access tokens through this Redis server")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text or json")

	for key, flag := range map[string]string{
		"project_id":         "project-id",
		"public_key_url":     "public-key-url",
		"credentials.file":   "credentials-file",
		"credentials.env":    "credentials-env",
		"credentials.secret": "credentials-secret",
		"redis.addr":         "redis-addr",
		"log.level":          "log-level",
		"log.format":         "log-format",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(
		newTokenCmd(a),
		newCustomTokenCmd(a),
		newVerifyCmd(a),
		newKeysCmd(a),
	)
	return cmd
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	a.log.SetLevel(level)
	a.log.SetOutput(stderr)
	if cfg.Log.Format == "json" {
		a.log.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// client builds a svcauth.Client from the loaded configuration. The returned
// cleanup releases the Redis connection, if any.
func (a *app) client(ctx context.Context) (*svcauth.Client, func(), error) {
	cfg := a.cfg
	cleanup := func() {}

	opts := []svcauth.Option{
		svcauth.WithLogger(svcauth.NewLogrusLogger(a.log)),
		svcauth.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		svcauth.WithTokenURL(cfg.TokenURL),
		svcauth.WithScopes(cfg.Scopes...),
		svcauth.WithTokenLifetime(cfg.TokenTTL),
		svcauth.WithExpiryMargin(cfg.ExpiryMargin),
		svcauth.WithAllowedClockSkew(cfg.ClockSkew),
		svcauth.WithBackgroundKeyRefresh(false),
	}
	if cfg.ProjectID != "" {
		opts = append(opts, svcauth.WithProjectID(cfg.ProjectID))
	}
	if cfg.PublicKeyURL != "" {
		opts = append(opts, svcauth.WithPublicKeyURL(cfg.PublicKeyURL))
	}

	source, err := a.certificateSource(ctx)
	if err != nil {
		return nil, cleanup, err
	}
	if source != nil {
		opts = append(opts, svcauth.WithCertificateSource(source))
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		cleanup = func() {
			if err := rdb.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close redis client")
			}
		}
		store, err := token.NewRedisStore(rdb, cfg.Redis.Key)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		opts = append(opts, svcauth.WithTokenStore(store))
	}

	client, err := svcauth.New(opts...)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return client, cleanup, nil
}

func (a *app) certificateSource(ctx context.Context) (certificate.Source, error) {
	creds := a.cfg.Credentials
	switch {
	case creds.File != "":
		return certificate.NewFileSource(creds.File)
	case creds.Env != "":
		return certificate.EnvSource{Variable: creds.Env}, nil
	case creds.Secret != "":
		return certificate.NewSecretManagerSource(ctx, creds.Secret)
	default:
		return nil, nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
