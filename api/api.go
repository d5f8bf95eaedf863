package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/internal/util"
	"github.com/roarinpenguin/roarinca/internal/uuid"
	"github.com/roarinpenguin/roarinca/registry"
	"github.com/roarinpenguin/roarinca/storage"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo   storage.Repository
	reg    *registry.Registry
	engine *ca.Engine

	sessions       SessionStore
	sessionTTL     time.Duration
	setupToken     string
	kdfParams      util.Argon2idParams
	audit          *auditLogger
	webhook        *auditWebhook
	alertFn        AlertFunc
	logger         *slog.Logger
	trustedProxies []netip.Prefix

	loginIPLimiter     *backoffLimiter
	loginGlobalLimiter *windowLimiter
	setupIPLimiter     *backoffLimiter
	setupGlobalLimiter *windowLimiter

	// Audit chain head, guarded by auditMu. Lazily primed from storage on
	// the first append after startup.
	auditMu       sync.Mutex
	auditLastHash string
	auditPrimed   bool

	auditMaxAge                time.Duration
	auditMaxEntries            int
	auditAppendsSinceRetention atomic.Int64
}

//go:embed openapi.yaml
var openapiSpec []byte

// setupTokenLength is the length of the one-time setup token printed at
// first start. The token alphabet avoids visually ambiguous characters so
// it survives being copied from a terminal.
const setupTokenLength = 24

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger used for operational and audit
// events. If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store SessionStore) Option {
	return func(a *API) {
		a.sessions = store
	}
}

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *API) {
		if ttl > 0 {
			a.sessionTTL = ttl
		}
	}
}

// WithTrustedProxies configures the CIDR ranges whose proxy headers
// (X-Forwarded-For and friends) are honored for client IP extraction.
// Without it, RemoteAddr is always used.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithKDFParams overrides the Argon2id cost parameters used to hash the
// admin passphrase.
func WithKDFParams(params util.Argon2idParams) Option {
	return func(a *API) {
		a.kdfParams = params
	}
}

// WithAuditRetention bounds the persistent audit trail by age and entry
// count. Zero values disable the respective bound.
func WithAuditRetention(maxAge time.Duration, maxEntries int) Option {
	return func(a *API) {
		a.auditMaxAge = maxAge
		a.auditMaxEntries = maxEntries
	}
}

// WithAlertFunc sets the callback invoked when anomaly detection trips a
// threshold. The default logs a warning through the configured logger.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithAuditWebhook mirrors audit events to an external HTTP endpoint.
// authHeader uses "Header: Value" form and may be empty.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		if url != "" {
			a.webhook = newAuditWebhook(url, authHeader)
		}
	}
}

// New creates a new API instance on top of the given repository and
// issuance engine.
func New(repo storage.Repository, engine *ca.Engine, opts ...Option) *API {
	a := &API{
		repo:               repo,
		reg:                registry.New(repo),
		engine:             engine,
		sessionTTL:         sessionDuration,
		kdfParams:          util.DefaultArgon2idParams(),
		loginIPLimiter:     newBackoffLimiter(loginIPPolicy),
		loginGlobalLimiter: newWindowLimiter(loginGlobalPolicy),
		setupIPLimiter:     newBackoffLimiter(setupIPPolicy),
		setupGlobalLimiter: newWindowLimiter(setupGlobalPolicy),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.sessions == nil {
		a.sessions = NewMemorySessionStore(sessionIdleTimeout)
	}
	if a.alertFn == nil {
		logger := a.logger
		a.alertFn = func(evt AlertEvent) {
			logger.Warn("anomaly alert",
				"type", string(evt.Type),
				"message", evt.Message,
				"count", evt.Count,
				"threshold", evt.Threshold)
		}
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)

	token, err := util.RandomChars(setupTokenLength)
	if err != nil {
		token = uuid.New()
	}
	a.setupToken = token
	return a
}

// SetupToken returns the one-time token required by POST /auth/setup.
// It is only meaningful while no admin passphrase is configured.
func (a *API) SetupToken() string {
	return a.setupToken
}

// Close releases background resources: the webhook dispatch queue and the
// session sweeper when the default store is in use.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
	if store, ok := a.sessions.(*MemorySessionStore); ok {
		store.Close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.CSRFMiddleware)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/auth/setup", a.Setup)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.With(a.AuthMiddleware).Get("/auth/session", a.SessionInfo)

	// The CA certificate is public: clients need it to build trust stores
	// before they can authenticate to anything.
	r.Get("/ca/certificate", a.DownloadCACertificate)

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)

		r.Get("/ca", a.GetCAIdentity)
		r.Put("/ca", a.SaveCAIdentity)
		r.Post("/ca/init", a.InitializeCA)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", a.CreateRequest)
			r.Get("/", a.ListRequests)
			r.Route("/{requestID}", func(r chi.Router) {
				r.Get("/", a.GetRequest)
				r.Delete("/", a.DeleteRequest)
				r.Get("/request.pem", a.DownloadRequestPEM)
				r.Get("/key.pem", a.DownloadRequestKeyPEM)
				r.Post("/sign", a.SignRequest)
			})
		})

		r.Route("/certificates", func(r chi.Router) {
			r.Get("/", a.ListCertificates)
			r.Post("/import", a.ImportCertificate)
			r.Route("/{certID}", func(r chi.Router) {
				r.Get("/", a.GetCertificate)
				r.Delete("/", a.DeleteCertificate)
				r.Get("/certificate.pem", a.DownloadCertificatePEM)
				r.Get("/key.pem", a.DownloadCertificateKeyPEM)
				r.Get("/fullchain.pem", a.DownloadFullchainPEM)
				r.Post("/export", a.ExportCertificate)
			})
		})

		r.Get("/audit", a.ListAudit)
		r.Get("/audit/export", a.ExportAudit)
	})

	return r
}
