package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/susu3304/netbank/internal/banking"
	"github.com/susu3304/netbank/internal/db"
	"github.com/susu3304/netbank/internal/session"
)

const tokenTTL = 24 * time.Hour

type Claims struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

type ctxKey int

const (
	claimsKey ctxKey = iota
	monitorKey
)

func claimsFrom(r *http.Request) *Claims {
	c, _ := r.Context().Value(claimsKey).(*Claims)
	return c
}

func monitorFrom(r *http.Request) *session.Monitor {
	m, _ := r.Context().Value(monitorKey).(*session.Monitor)
	return m
}

// Auth handlers
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := generateRandomString(32)
	a.loginStates.Set(state, struct{}{}, loginStateTTL)
	url := a.oauthConfig.AuthCodeURL(state)

	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": url,
		"state":    state,
	})
}

type loginResult struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
}

// authenticateUser exchanges the authorization code, opens a web session for the customer and
// starts its monitor.
func (a *API) authenticateUser(ctx context.Context, code string) (*loginResult, error) {
	token, err := a.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, &HandlerError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("token exchange failed: %w", err)}
	}

	profile, err := a.bank.Profile(ctx, token.AccessToken)
	if err != nil {
		if errors.Is(err, banking.ErrUnauthorized) {
			return nil, &HandlerError{StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("failed to get profile: %w", err)}
		}
		return nil, &HandlerError{StatusCode: http.StatusBadGateway, Err: fmt.Errorf("failed to get profile: %w", err)}
	}

	cfg := a.monitorConfig(profile)
	ws := &db.WebSession{
		ID:                  uuid.NewString(),
		UserID:              profile.UserID,
		DisplayName:         profile.DisplayName,
		AccessToken:         token.AccessToken,
		TimeoutMinutes:      int(cfg.Timeout / time.Minute),
		PromptOffsetMinutes: int(cfg.PromptOffset / time.Minute),
	}
	if err := a.store.CreateSession(ctx, ws); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	if profile.Accounts.Exists() {
		if err := a.store.SaveAccounts(ctx, ws.ID, []byte(profile.Accounts.Raw)); err != nil {
			logger.Warn().Err(err).Str("session", ws.ID).Msg("failed to cache accounts")
		}
	}

	a.sessions.Start(session.Options{
		ID:        ws.ID,
		Config:    cfg,
		Scheduler: a.scheduler,
		Backend:   a.bank.ForToken(token.AccessToken),
		Store:     a.store,
		Navigator: a.client,
		Prompter:  a.client,
		Dispatch:  a.dispatch,
		OnTouch:   a.touchSession,
		OnEnd:     a.endSession,
	})

	now := time.Now()
	claims := &Claims{
		SessionID: ws.ID,
		UserID:    profile.UserID,
		Username:  profile.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	logger.Info().Str("session", ws.ID).Str("user", profile.UserID).Msg("session opened")
	return &loginResult{
		Token:     signed,
		SessionID: ws.ID,
		UserID:    profile.UserID,
		Username:  profile.DisplayName,
	}, nil
}

// monitorConfig uses the configured idle timeout, or the customer's own when the server is
// trusted to deliver it.
func (a *API) monitorConfig(p *banking.Profile) session.Config {
	cfg := session.Config{
		Timeout:          a.config.SessionTimeout,
		PromptOffset:     a.config.SessionPromptOffset,
		ActivityThrottle: a.config.ActivityThrottle,
		CallTimeout:      a.config.BankCallTimeout,
	}
	if a.config.SessionTimeoutFromServer && p.Timeout > 0 {
		cfg.Timeout = p.Timeout
		if p.PromptOffset > 0 && p.PromptOffset < p.Timeout {
			cfg.PromptOffset = p.PromptOffset
		}
	}
	return cfg
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, errorf(http.StatusBadRequest, "missing code"))
		return
	}
	// A state is single-use: checking and consuming it is one step.
	item, ok := a.loginStates.GetAndDelete(r.URL.Query().Get("state"))
	if !ok || item.IsExpired() {
		writeError(w, errorf(http.StatusBadRequest, "invalid or expired state"))
		return
	}

	res, err := a.authenticateUser(r.Context(), code)
	if err != nil {
		logger.Warn().Err(err).Msg("login failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	monitorFrom(r).Logout(session.ReasonUser)
	writeJSON(w, http.StatusOK, Message{Type: MessageSuccess, Message: "logged out", Redirect: session.EntryRoute})
}

func (a *API) touchSession(id string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.BankCallTimeout)
	defer cancel()
	if err := a.store.TouchSession(ctx, id, at); err != nil {
		logger.Warn().Err(err).Str("session", id).Msg("failed to record activity")
	}
}

func (a *API) endSession(id, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.BankCallTimeout)
	defer cancel()
	if err := a.store.EndSession(ctx, id, reason); err != nil {
		logger.Warn().Err(err).Str("session", id).Msg("failed to end session")
	}
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, errorf(http.StatusUnauthorized, "missing authorization header"))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, errorf(http.StatusUnauthorized, "invalid authorization header"))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			writeError(w, errorf(http.StatusUnauthorized, "invalid token"))
			return
		}

		mon, err := a.sessions.Lookup(claims.SessionID)
		if err != nil || !live(mon.State()) {
			writeJSON(w, http.StatusUnauthorized, Message{
				Type:     MessageError,
				Message:  "session expired",
				Redirect: a.client.redirect(claims.SessionID),
			})
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, monitorKey, mon)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func live(s session.State) bool {
	return s == session.StateActive || s == session.StatePromptPending
}
