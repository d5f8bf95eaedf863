package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/roarinpenguin/roarinca/api"
	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/internal/util"
	"github.com/roarinpenguin/roarinca/registry"
	"github.com/roarinpenguin/roarinca/storage"
	bboltstorage "github.com/roarinpenguin/roarinca/storage/bbolt"
	pgstorage "github.com/roarinpenguin/roarinca/storage/postgres"
	"github.com/roarinpenguin/roarinca/web"
)

var (
	port            int
	dataDir         string
	postgresDSN     string
	tlsCert         string
	tlsKey          string
	trustedProxies  []string
	webhookURL      string
	webhookHeader   string
	auditMaxAge     time.Duration
	auditMaxEntries int
	sessionTTL      time.Duration
	kdfProfile      string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the certificate authority server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		repo, closeRepo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer closeRepo()

		engine := ca.NewEngine(registry.New(repo), ca.NewFileArtifactStore(filepath.Join(dataDir, "ca")))

		opts, err := buildAPIOptions()
		if err != nil {
			return err
		}
		a := api.New(repo, engine, opts...)
		defer a.Close()

		handler, err := buildHandler(a)
		if err != nil {
			return err
		}
		tlsConfig, err := serverTLSConfig()
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		return serveUntilSignal(srv, a)
	},
}

// buildHandler assembles the full route tree: the JSON API under /api/v1,
// the embedded web UI on everything else, and an unauthenticated health
// probe for load balancers.
func buildHandler(a *api.API) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/api/v1", a.Router())

	ui, err := web.Handler()
	if err != nil {
		return nil, fmt.Errorf("loading embedded web UI: %w", err)
	}
	r.Handle("/*", ui)
	return r, nil
}

// serverTLSConfig loads the configured key pair, or mints an ephemeral
// self-signed certificate so the server never listens in plaintext.
func serverTLSConfig() (*tls.Config, error) {
	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case tlsCert != "" && tlsKey != "":
		cert, err = tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return nil, fmt.Errorf("loading TLS key pair: %w", err)
		}
	case tlsCert != "" || tlsKey != "":
		return nil, errors.New("--tls-cert and --tls-key must be set together")
	default:
		cert, err = util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("generating ephemeral certificate: %w", err)
		}
		fmt.Println("No TLS key pair configured; serving with an ephemeral self-signed certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// serveUntilSignal runs srv until it fails or the process receives
// SIGINT or SIGTERM, then drains in-flight requests before returning.
func serveUntilSignal(srv *http.Server, a *api.API) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServeTLS("", "")
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	printBanner()
	fmt.Printf("Listening on :%d (data: %s)\n", port, dataDir)
	printSetupHint(a)

	select {
	case <-ctx.Done():
		// Release the signal handlers so a second Ctrl-C exits immediately.
		stop()
		fmt.Println("\nShutting down...")
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}

// printSetupHint surfaces the one-time setup token on first boot.
func printSetupHint(a *api.API) {
	needsSetup, err := a.NeedsSetup()
	if err != nil || !needsSetup {
		return
	}
	fmt.Printf("\nAdmin setup pending. One-time setup token:\n\n    %s\n\n", a.SetupToken())
	fmt.Println("Complete setup in the web UI or via POST /api/v1/auth/setup.")
}

// openRepository selects the storage backend: PostgreSQL when a DSN is
// given, an embedded BBolt file otherwise.
func openRepository(ctx context.Context) (storage.Repository, func(), error) {
	if postgresDSN != "" {
		repo, err := pgstorage.NewRepositoryFromDSN(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	}

	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dataDir, "roarinca.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}
	return repo, func() { repo.Close() }, nil
}

func buildAPIOptions() ([]api.Option, error) {
	params, err := util.Argon2idProfile(kdfProfile)
	if err != nil {
		return nil, err
	}
	opts := []api.Option{
		api.WithKDFParams(params),
		api.WithSessionTTL(sessionTTL),
		api.WithAuditRetention(auditMaxAge, auditMaxEntries),
	}

	if len(trustedProxies) > 0 {
		prefixes, err := parseTrustedProxies(trustedProxies)
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithTrustedProxies(prefixes))
	}

	if webhookURL != "" {
		opts = append(opts, api.WithAuditWebhook(webhookURL, webhookHeader))
	}

	return opts, nil
}

// parseTrustedProxies parses CIDR strings into prefixes. Bare addresses
// are treated as single-host prefixes (/32 or /128).
func parseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "HTTPS listen port")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for the database and CA key material")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL DSN (uses embedded storage when empty)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "TLS certificate for the listener (PEM)")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "TLS private key for the listener (PEM)")
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDR ranges whose proxy headers are trusted for client IPs")
	serverCmd.Flags().StringVar(&webhookURL, "audit-webhook-url", "", "URL notified of every audit event")
	serverCmd.Flags().StringVar(&webhookHeader, "audit-webhook-header", "", `Extra webhook request header ("Name: value")`)
	serverCmd.Flags().DurationVar(&auditMaxAge, "audit-max-age", 0, "Prune audit entries older than this (0 keeps everything)")
	serverCmd.Flags().IntVar(&auditMaxEntries, "audit-max-entries", 0, "Keep at most this many audit entries (0 keeps everything)")
	serverCmd.Flags().DurationVar(&sessionTTL, "session-ttl", 24*time.Hour, "Admin session lifetime")
	serverCmd.Flags().StringVar(&kdfProfile, "kdf-profile", util.KDFProfileModerate, "Argon2id cost profile (interactive, moderate, sensitive)")
}
