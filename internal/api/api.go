// Package api is the HTTP surface of the BFF: bank login, the session monitor endpoints the web
// client polls and reports activity to, and the decoded banking data.
package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/susu3304/netbank/internal/banking"
	"github.com/susu3304/netbank/internal/config"
	"github.com/susu3304/netbank/internal/db"
	"github.com/susu3304/netbank/internal/session"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

const loginStateTTL = 10 * time.Minute

// Store is the persistence the API needs. *db.DB implements it.
type Store interface {
	CreateSession(ctx context.Context, s *db.WebSession) error
	GetSession(ctx context.Context, id string) (*db.WebSession, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	EndSession(ctx context.Context, id, reason string) error
	SaveAccounts(ctx context.Context, sessionID string, payload []byte) error
	GetAccounts(ctx context.Context, sessionID string) ([]byte, error)
	Logout(ctx context.Context, sessionID string) error
}

type API struct {
	router      *mux.Router
	store       Store
	bank        *banking.Client
	sessions    *session.Manager
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	loginStates *ttlcache.Cache[string, struct{}]
	client      *clientChannel
	// scheduler and dispatch are passed to every monitor; nil means the session package defaults.
	scheduler session.Scheduler
	dispatch  func(func())
	server    *http.Server
}

func New(cfg *config.Config, store Store, bank *banking.Client, sessions *session.Manager) *API {
	api := &API{
		router:    mux.NewRouter(),
		store:     store,
		bank:      bank,
		sessions:  sessions,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURI,
			Scopes:       []string{"openid", "accounts"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OAuthAuthURL,
				TokenURL: cfg.OAuthTokenURL,
			},
		},
		loginStates: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](loginStateTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		client: newClientChannel(),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")

	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/auth/logout", a.handleLogout).Methods("POST")
	protected.HandleFunc("/session", a.handleSession).Methods("GET")
	protected.HandleFunc("/session/activity", a.handleActivity).Methods("POST")
	protected.HandleFunc("/session/prompt", a.handlePrompt).Methods("POST")
	protected.HandleFunc("/session/close", a.handleSessionClose).Methods("POST")
	protected.HandleFunc("/accounts", a.handleAccounts).Methods("GET")

	protected.HandleFunc("/transactions", a.handleTransactions).Methods("GET")
	protected.HandleFunc("/scheduled-payments", a.handleScheduledPayments).Methods("GET")
	protected.HandleFunc("/payees", a.handlePayees).Methods("GET")
	protected.HandleFunc("/locations", a.handleLocations).Methods("GET")
	protected.HandleFunc("/notifications", a.handleNotifications).Methods("GET")
	protected.HandleFunc("/statements", a.handleStatements).Methods("GET")
	protected.HandleFunc("/receipts/{ref}", a.handleReceipt).Methods("POST")
}

// Handler is the router wrapped in CORS.
func (a *API) Handler() http.Handler {
	// Note: When AllowedOrigins is "*", AllowCredentials must be false
	corsOptions := cors.Options{
		AllowedOrigins:   a.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: !containsWildcard(a.config.CORSOrigins),
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go a.loginStates.Start()
	go a.client.start()

	logger.Info().Str("bind", a.config.WebBind).Msg("API server listening")
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start.
func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	a.loginStates.Stop()
	a.client.stop()
	return a.server.Shutdown(ctx)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
