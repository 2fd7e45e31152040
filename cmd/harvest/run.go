package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/credentials"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/infrastructure/config"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/infrastructure/monitoring"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/browser"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/formlogin"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/http/client"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/providers/output"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/session"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/signing"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	output      string
	format      string
	compression string
	driver      string
}

func newRunCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log in, fetch users and the current user, write the result",
		Long: `Runs one harvest:
  1. Log in with the interactive session and collect its cookies
  2. Copy the cookies to every HARVEST_ORIGINS entry
  3. Fetch the user listing
  4. Read the token page, sign it and fetch the current user
  5. Write both to --output (default users.json, "-" for stdout)

Nothing is written unless every step succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := g.logger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHarvest(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", `output path, "-" for stdout`)
	cmd.Flags().StringVar(&f.format, "format", "", "json or yaml (default from the output suffix)")
	cmd.Flags().StringVar(&f.compression, "compression", "", "none, gzip or zstd (default from the output suffix)")
	cmd.Flags().StringVar(&f.driver, "driver", "", "interactive session: rod or form")
	return cmd
}

// apply lets explicit flags win over env and file values
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Path = f.output
	}
	if flags.Changed("format") {
		cfg.Output.Format = f.format
	}
	if flags.Changed("compression") {
		cfg.Output.Compression = f.compression
	}
	if flags.Changed("driver") {
		cfg.Browser.Driver = f.driver
	}
}

func runHarvest(ctx context.Context, cfg *config.Config, logger *logging.Logger, stdout io.Writer) error {
	metrics := monitoring.NewMetrics()
	logger.Debug("configuration loaded", zap.Any("config", cfg.Redacted()))

	orch, err := buildOrchestrator(cfg, logger, metrics, stdout)
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := orch.Run(ctx)
	metrics.RunFinished(err, time.Now())
	if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
		logger.Warn("failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(werr))
	}

	if err != nil {
		// the orchestrator has already logged it
		return &loggedError{err: err}
	}
	logger.Info("harvest complete",
		zap.String("run_id", orch.RunID()),
		zap.Int("users", len(result.Users)),
		zap.String("current_user", result.CurrentUser.ID()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func buildOrchestrator(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, stdout io.Writer) (*session.Orchestrator, error) {
	origins, err := credentials.ParseOrigins(cfg.Origins)
	if err != nil {
		return nil, err
	}

	signer, err := signing.New([]byte(cfg.Signing.Secret))
	if err != nil {
		return nil, err
	}

	sink, err := newSink(cfg.Output, logger, stdout)
	if err != nil {
		return nil, err
	}

	httpClient := client.NewClient(client.Config{
		Timeout:      cfg.HTTP.Timeout.Std(),
		RetryCount:   cfg.HTTP.Retries,
		RetryWait:    cfg.HTTP.RetryWait.Std(),
		RetryMaxWait: cfg.HTTP.RetryMaxWait.Std(),
		RateLimit:    cfg.HTTP.RateLimit,
		MaxRedirects: client.DefaultConfig().MaxRedirects,
		UserAgent:    cfg.HTTP.UserAgent,
	}, client.WithLogger(logger.Named("http")), client.WithObserver(metrics))

	interactive, err := newInteractive(cfg, logger)
	if err != nil {
		return nil, err
	}

	orch, err := session.New(session.Deps{
		Session:  interactive,
		HTTP:     httpClient,
		Sink:     sink,
		Signer:   signer,
		Logger:   logger,
		Observer: metrics,
	}, session.Options{
		Account: credentials.Account{
			Username: cfg.Account.Username,
			Password: cfg.Account.Password,
		},
		Origins:     origins,
		UsersURL:    cfg.Endpoints.UsersURL,
		UsersMethod: cfg.Endpoints.UsersMethod,
		SettingsURL: cfg.Endpoints.SettingsURL,
		TokenFields: cfg.Endpoints.TokenFields,
		MaxAge:      cfg.Signing.MaxAge.Std(),
	})
	if err != nil {
		interactive.Close()
		return nil, err
	}
	return orch, nil
}

func newInteractive(cfg *config.Config, logger *logging.Logger) (session.InteractiveSession, error) {
	switch cfg.Browser.Driver {
	case config.DriverForm:
		fc := formlogin.DefaultConfig()
		fc.LoginURL = cfg.Endpoints.LoginURL
		fc.TokensURL = cfg.Endpoints.TokensURL
		fc.TokenFields = cfg.Endpoints.TokenFields
		fc.Timeout = cfg.HTTP.Timeout.Std()
		if cfg.HTTP.UserAgent != "" {
			fc.UserAgent = cfg.HTTP.UserAgent
		}
		s, err := formlogin.New(fc, logger.Named("formlogin"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRod:
		bc := browser.DefaultConfig()
		bc.ControlURL = cfg.Browser.ControlURL
		bc.Bin = cfg.Browser.Bin
		bc.Headless = cfg.Browser.Headless
		bc.NoSandbox = cfg.Browser.NoSandbox
		bc.ProfileDir = cfg.Browser.ProfileDir
		bc.NavTimeout = cfg.Browser.NavTimeout.Std()
		bc.LoginURL = cfg.Endpoints.LoginURL
		bc.TokensURL = cfg.Endpoints.TokensURL
		bc.TokenFields = cfg.Endpoints.TokenFields
		s, err := browser.New(bc, logger.Named("browser"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown browser driver %q", config.ErrInvalid, cfg.Browser.Driver)
	}
}

func newSink(cfg config.OutputConfig, logger *logging.Logger, stdout io.Writer) (*output.FileSink, error) {
	opts := []output.Option{output.WithLogger(logger.Named("output")), output.WithStdout(stdout)}
	if cfg.Format != "" {
		format, err := output.ParseFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		opts = append(opts, output.WithFormat(format))
	}
	if cfg.Compression != "" {
		comp, err := output.ParseCompression(cfg.Compression)
		if err != nil {
			return nil, err
		}
		opts = append(opts, output.WithCompression(comp))
	}
	return output.NewFileSink(cfg.Path, opts...), nil
}
