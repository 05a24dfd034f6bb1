package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cwoolley/mangafind/internal/config"
	"github.com/cwoolley/mangafind/internal/connectors"
	"github.com/cwoolley/mangafind/internal/logger"
	"github.com/cwoolley/mangafind/internal/metrics"
	"github.com/cwoolley/mangafind/internal/search"
	"github.com/cwoolley/mangafind/internal/server"
	"github.com/cwoolley/mangafind/internal/session"
	"github.com/cwoolley/mangafind/internal/state"
	"github.com/cwoolley/mangafind/internal/transport"
	"github.com/cwoolley/mangafind/internal/tui"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

// loadConfig is overridden in tests.
var loadConfig = config.Load

// makeSignalCh returns a channel that receives SIGINT/SIGTERM and a stop func.
// Overridden in tests so no real signal is sent to the process.
var makeSignalCh = func() (chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// teaRunner abstracts tea.Program for testing.
type teaRunner interface {
	Run() (tea.Model, error)
}

var newTeaProgram = func(m tea.Model) teaRunner {
	return tea.NewProgram(m, tea.WithAltScreen())
}

// httpServer is the part of server.Server that serveLoop drives.
type httpServer interface {
	Serve() error
	Addr() string
	Shutdown(ctx context.Context) error
}

// App holds the collaborators shared by every command.
type App struct {
	Store      *state.Store
	Connectors connectors.Lister
	Session    *session.Store
	Metrics    http.Handler
	ServerAddr string
}

// buildApp wires transport, connectors, aggregator and store from cfg.
// Auth failures are reported on errOut.
func buildApp(cfg *config.Config, errOut io.Writer) *App {
	sess := session.New(cfg.TokenPath)
	rec := metrics.New()

	api := transport.New(transport.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		TokenSource: sess,
		RateLimit:   cfg.RateLimit,
		UserAgent:   "mangafind/" + version,
		OnUnauthorized: func(e *transport.HTTPError) {
			fmt.Fprintf(errOut, "%s %s was rejected (401). Run `mangafind login --token <token>` to sign in again.\n", e.Method, e.Path)
		},
	})
	client := connectors.NewClient(api)
	registry := connectors.NewCachedRegistry(client, cfg.ConnectorTTL)
	agg := search.New(registry, client,
		search.WithObserver(rec),
		search.WithMaxConcurrency(cfg.MaxConcurrency),
	)

	logger.Debug("api base URL: %s", api.BaseURL())

	return &App{
		Store:      state.New(agg),
		Connectors: registry,
		Session:    sess,
		Metrics:    rec.Handler(),
		ServerAddr: cfg.ServerAddr,
	}
}

func newRootCmd(app *App, out io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "mangafind",
		Short:         "Search for manga across every connector at once",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetVerbose(true)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newSearchCmd(app, out),
		newConnectorsCmd(app, out),
		newServeCmd(app, out),
		newInteractiveCmd(app),
		newLoginCmd(app, out),
		newLogoutCmd(app, out),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(out, "mangafind version %s\n", version)
			},
		},
	)
	return root
}

func newSearchCmd(app *App, out io.Writer) *cobra.Command {
	var connector string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search all enabled connectors, or one with --connector",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			st, err := app.Store.Search(cmd.Context(), query, connector)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			if len(st.Items) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			for i, it := range st.Items {
				fmt.Fprintf(out, "%d. %s\n   %s\n   [%s]\n\n", i+1, it.Title(), it.Key, strings.Join(it.AvailableSources, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&connector, "connector", "c", "", "search only this connector")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the search state as JSON")
	return cmd
}

func newConnectorsCmd(app *App, out io.Writer) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "List enabled connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := app.Connectors.List(cmd.Context())
			if err != nil {
				return err
			}
			n := 0
			for _, d := range descs {
				if d.Enabled || all {
					fmt.Fprintln(out, d)
					n++
				}
			}
			if n == 0 {
				fmt.Fprintln(out, "No connectors enabled.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include disabled connectors")
	return cmd
}

func newServeCmd(app *App, out io.Writer) *cobra.Command {
	defaultAddr := app.ServerAddr
	if defaultAddr == "" {
		defaultAddr = ":8080"
	}
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.New(addr)
			server.NewAPI(app.Store, app.Connectors).Register(srv)
			srv.Handle("GET /metrics", app.Metrics)

			if err := srv.Listen(); err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			fmt.Fprintf(out, "Listening on %s\n", srv.Addr())
			return serveLoop(srv, out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "address to listen on")
	return cmd
}

// serveLoop runs srv until it fails or a shutdown signal arrives.
func serveLoop(srv httpServer, out io.Writer) error {
	sigCh, stop := makeSignalCh()
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		fmt.Fprintf(out, "Received %s, shutting down...\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newInteractiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"tui"},
		Short:   "Search interactively",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, err := app.Connectors.List(cmd.Context())
			if err != nil {
				// Global search still works; only the scope picker is reduced.
				logger.Warn("could not list connectors: %v", err)
			}
			model := tui.NewModel(app.Store, connectors.EnabledNames(descs))
			_, err = newTeaProgram(model).Run()
			return err
		},
	}
}

func newLoginCmd(app *App, out io.Writer) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return errors.New("--token must not be empty")
			}
			if err := app.Session.Save(strings.TrimSpace(token)); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved session to %s\n", app.Session.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the API")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCmd(app *App, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(out, "Logged out.")
			return nil
		},
	}
}

func runWithOutput(args []string, app *App, out io.Writer) error {
	cmd := newRootCmd(app, out)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd.Execute()
}

func run(args []string, app *App) error {
	return runWithOutput(args, app, os.Stdout)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetVerbose(cfg.Verbose)

	if err := run(os.Args[1:], buildApp(cfg, os.Stderr)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
