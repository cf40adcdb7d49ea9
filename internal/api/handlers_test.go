package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/netbank/internal/banking"
	"github.com/susu3304/netbank/internal/config"
	"github.com/susu3304/netbank/internal/db"
	"github.com/susu3304/netbank/internal/session"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*db.WebSession
	accounts map[string][]byte
	ended    map[string]string
	touched  map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]*db.WebSession{},
		accounts: map[string][]byte{},
		ended:    map[string]string{},
		touched:  map[string]time.Time{},
	}
}

func (s *memStore) CreateSession(_ context.Context, ws *db.WebSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ws
	cp.State = "active"
	s.sessions[ws.ID] = &cp
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*db.WebSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.sessions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *ws
	return &cp, nil
}

func (s *memStore) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[id] = at
	return nil
}

func (s *memStore) EndSession(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.ended[id]; !done {
		s.ended[id] = reason
	}
	return nil
}

func (s *memStore) SaveAccounts(_ context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = payload
	return nil
}

func (s *memStore) GetAccounts(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.accounts[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return payload, nil
}

func (s *memStore) Logout(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	if ws, ok := s.sessions[id]; ok {
		ws.AccessToken = ""
	}
	return nil
}

func (s *memStore) endReason(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended[id]
}

type bankCall struct {
	path string
	body map[string]interface{}
}

type fakeBank struct {
	mu      sync.Mutex
	calls   []bankCall
	replies map[string]string
}

func (b *fakeBank) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.path == path {
			n++
		}
	}
	return n
}

func (b *fakeBank) last(path string) map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.calls) - 1; i >= 0; i-- {
		if b.calls[i].path == path {
			return b.calls[i].body
		}
	}
	return nil
}

func (b *fakeBank) set(path, reply string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[path] = reply
}

func (b *fakeBank) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth2/token" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"bank-token","token_type":"Bearer","expires_in":3600}`)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)

	b.mu.Lock()
	b.calls = append(b.calls, bankCall{path: r.URL.Path, body: body})
	reply, ok := b.replies[r.URL.Path]
	b.mu.Unlock()

	switch {
	case !ok:
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"rs":{"status":"success"}}`)
	case reply == "401":
		w.WriteHeader(http.StatusUnauthorized)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}
}

type harness struct {
	api   *API
	store *memStore
	bank  *fakeBank
	sched *session.ManualScheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bank := &fakeBank{replies: map[string]string{
		"/customer/profile": `{"rs":{"status":"success","userId":"u-42","name":"Ada","accounts":[{"no":"ACC1"}]}}`,
	}}
	srv := httptest.NewServer(bank)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		BankAPIURL:          srv.URL,
		BankCallTimeout:     5 * time.Second,
		OAuthClientID:       "client",
		OAuthClientSecret:   "secret",
		OAuthAuthURL:        srv.URL + "/oauth2/authorize",
		OAuthTokenURL:       srv.URL + "/oauth2/token",
		OAuthRedirectURI:    "http://localhost:3000/api/auth/callback",
		CORSOrigins:         []string{"*"},
		JWTSecret:           "test-secret",
		SessionTimeout:      20 * time.Minute,
		SessionPromptOffset: time.Minute,
		ActivityThrottle:    60 * time.Second,
	}
	store := newMemStore()
	manager := session.NewManager()
	t.Cleanup(manager.StopAll)

	a := New(cfg, store, banking.NewClient(srv.URL, 5*time.Second), manager)
	sched := session.NewManualScheduler(time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC))
	a.scheduler = sched
	a.dispatch = func(fn func()) { fn() }
	return &harness{api: a, store: store, bank: bank, sched: sched}
}

func (h *harness) do(t *testing.T, method, target, token, body string) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.api.Handler().ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (h *harness) doList(t *testing.T, target, token string) (int, []map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.api.Handler().ServeHTTP(w, req)

	var out []map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

// login runs the OAuth round trip and returns the bearer token and session ID.
func (h *harness) login(t *testing.T) (string, string) {
	t.Helper()
	code, body := h.do(t, http.MethodGet, "/api/auth/login", "", "")
	require.Equal(t, http.StatusOK, code)
	state, _ := body["state"].(string)
	require.NotEmpty(t, state)

	code, body = h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+url.QueryEscape(state), "", "")
	require.Equal(t, http.StatusOK, code, body)
	token, _ := body["token"].(string)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, id)
	return token, id
}

func TestLoginReturnsAuthURL(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(t, http.MethodGet, "/api/auth/login", "", "")
	require.Equal(t, http.StatusOK, code)

	authURL, err := url.Parse(body["auth_url"].(string))
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/authorize", authURL.Path)
	assert.Equal(t, "client", authURL.Query().Get("client_id"))
	assert.Equal(t, body["state"], authURL.Query().Get("state"))
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state=forged", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, MessageError, body["type"])
	assert.Equal(t, 0, h.api.sessions.Len())
}

func TestCallbackStateIsSingleUse(t *testing.T) {
	h := newHarness(t)
	_, body := h.do(t, http.MethodGet, "/api/auth/login", "", "")
	state := body["state"].(string)

	code, _ := h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+url.QueryEscape(state), "", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+url.QueryEscape(state), "", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCallbackStateConsumedOnceUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	_, body := h.do(t, http.MethodGet, "/api/auth/login", "", "")
	target := "/api/auth/callback?code=abc&state=" + url.QueryEscape(body["state"].(string))

	const callers = 8
	codes := make(chan int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.api.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
			codes <- w.Code
		}()
	}
	wg.Wait()
	close(codes)

	ok := 0
	for code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, code)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, h.api.sessions.Len())
}

func TestCallbackOpensSession(t *testing.T) {
	h := newHarness(t)
	_, id := h.login(t)

	ws, err := h.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u-42", ws.UserID)
	assert.Equal(t, "Ada", ws.DisplayName)
	assert.Equal(t, "bank-token", ws.AccessToken)
	assert.Equal(t, 20, ws.TimeoutMinutes)
	assert.Equal(t, 1, ws.PromptOffsetMinutes)
	assert.JSONEq(t, `[{"no":"ACC1"}]`, string(h.store.accounts[id]))

	mon := h.api.sessions.Get(id)
	require.NotNil(t, mon)
	assert.Equal(t, session.StateActive, mon.State())
}

func TestCallbackUsesServerTimeouts(t *testing.T) {
	h := newHarness(t)
	h.api.config.SessionTimeoutFromServer = true
	h.bank.set("/customer/profile", `{"rs":{"status":"success","userId":"u-42","name":"Ada","tn":{"to":15,"tofset":2}}}`)
	_, id := h.login(t)

	cfg := h.api.sessions.Get(id).Config()
	assert.Equal(t, 15*time.Minute, cfg.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.PromptOffset)
}

func TestCallbackProfileFailure(t *testing.T) {
	h := newHarness(t)
	h.bank.set("/customer/profile", `{"rs":{"status":"fail","msg":"locked"}}`)
	_, body := h.do(t, http.MethodGet, "/api/auth/login", "", "")

	code, _ := h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+url.QueryEscape(body["state"].(string)), "", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, 0, h.api.sessions.Len())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(t, http.MethodGet, "/api/session", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, MessageError, body["type"])

	code, _ = h.do(t, http.MethodGet, "/api/session", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestIdleSessionPromptsThenExpires(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	code, body := h.do(t, http.MethodGet, "/api/session", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["state"])

	h.sched.Advance(19 * time.Minute)
	code, body = h.do(t, http.MethodGet, "/api/session", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "prompt_pending", body["state"])
	prompt, _ := body["prompt"].(map[string]interface{})
	require.NotNil(t, prompt)
	assert.Equal(t, "Continue", prompt["confirm_label"])

	h.sched.Advance(time.Minute)
	code, body = h.do(t, http.MethodGet, "/api/session", token, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session expired", body["message"])
	assert.Equal(t, "/", body["redirect"])

	assert.Equal(t, session.ReasonTimeout, h.store.endReason(id))
	assert.Equal(t, 1, h.bank.count("/auth/logout"))
	ws, err := h.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, ws.AccessToken)
	assert.Equal(t, 0, h.api.sessions.Len())
}

func TestPromptContinueKeepsSession(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	h.sched.Advance(19 * time.Minute)
	code, body := h.do(t, http.MethodPost, "/api/session/prompt", token, `{"choice":"continue"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, 1, h.bank.count("/session/extend"))

	h.sched.Advance(time.Minute)
	assert.Equal(t, session.StateActive, h.api.sessions.Get(id).State())
}

func TestPromptLogout(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	h.sched.Advance(19 * time.Minute)
	code, body := h.do(t, http.MethodPost, "/api/session/prompt", token, `{"choice":"logout"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MessageSuccess, body["type"])
	assert.Equal(t, "/", body["redirect"])
	assert.Equal(t, session.ReasonUser, h.store.endReason(id))
}

func TestPromptLeftOverAfterActivityIsRejected(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	h.sched.Advance(19 * time.Minute)
	p, ok := h.api.client.prompt(id)
	require.True(t, ok)
	h.api.sessions.Get(id).OnActivity("keydown")
	// the prompt reached the client after it was withdrawn
	h.api.client.Confirm(id, p)

	code, _ := h.do(t, http.MethodPost, "/api/session/prompt", token, `{"choice":"logout"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, session.StateActive, h.api.sessions.Get(id).State())
	assert.Empty(t, h.store.endReason(id))
	_, held := h.api.client.prompt(id)
	assert.False(t, held)

	p.OnCancel()
	assert.Equal(t, session.StateActive, h.api.sessions.Get(id).State())
}

func TestPromptErrors(t *testing.T) {
	h := newHarness(t)
	token, _ := h.login(t)

	code, _ := h.do(t, http.MethodPost, "/api/session/prompt", token, `{"choice":"continue"}`)
	assert.Equal(t, http.StatusConflict, code)

	h.sched.Advance(19 * time.Minute)
	code, _ = h.do(t, http.MethodPost, "/api/session/prompt", token, `{"choice":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(t, http.MethodPost, "/api/session/prompt", token, `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestActivityIsThrottled(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	code, body := h.do(t, http.MethodPost, "/api/session/activity", token, `{"kind":"pointerdown"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["recorded"])
	assert.Equal(t, 1, h.bank.count("/session/refresh"))

	h.sched.Advance(30 * time.Second)
	h.do(t, http.MethodPost, "/api/session/activity", token, `{"kind":"keydown"}`)
	assert.Equal(t, 1, h.bank.count("/session/refresh"))

	h.sched.Advance(61 * time.Second)
	h.do(t, http.MethodPost, "/api/session/activity", token, `{"kind":"scroll"}`)
	assert.Equal(t, 2, h.bank.count("/session/refresh"))
	assert.Equal(t, h.sched.Now(), h.store.touched[id])

	code, _ = h.do(t, http.MethodPost, "/api/session/activity", token, `{"kind":"resize"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	code, body := h.do(t, http.MethodPost, "/api/auth/logout", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "logged out", body["message"])
	assert.Equal(t, "/", body["redirect"])
	assert.Equal(t, session.ReasonUser, h.store.endReason(id))
	assert.Equal(t, 1, h.bank.count("/auth/logout"))

	code, _ = h.do(t, http.MethodPost, "/api/auth/logout", token, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 1, h.bank.count("/auth/logout"))
}

func TestSessionCloseClearsTimersWithoutLogout(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)
	require.Equal(t, 1, h.sched.Pending())

	code, body := h.do(t, http.MethodPost, "/api/session/close", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, MessageSuccess, body["type"])
	assert.Equal(t, 0, h.sched.Pending())
	assert.Equal(t, 0, h.api.sessions.Len())

	h.sched.Advance(time.Hour)
	assert.Equal(t, 0, h.bank.count("/auth/logout"))
	assert.Empty(t, h.store.endReason(id))

	code, _ = h.do(t, http.MethodGet, "/api/session", token, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAccounts(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.api.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"no":"ACC1"}]`, w.Body.String())

	require.NoError(t, h.store.Logout(context.Background(), id))
	w = httptest.NewRecorder()
	h.api.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestNonNumericAmountKeepsList(t *testing.T) {
	h := newHarness(t)
	token, _ := h.login(t)
	h.bank.set("/accounts/history", `{"rs":{"status":"success","history":"T1#2024-11-01#NaN##ACC1#Checking#ACC2#Savings#SUCCESS#Rent##USD|T2#2024-11-02#-Infinity##ACC1#Checking#ACC2#Savings#SUCCESS#Gym##USD|T3#2024-11-03#12.5##ACC1#Checking#ACC2#Savings#SUCCESS#Tea##USD"}}`)

	code, txs := h.doList(t, "/api/transactions", token)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, txs, 3)
	assert.Equal(t, 0.0, txs[0]["amount"])
	assert.Equal(t, 0.0, txs[1]["amount"])
	assert.Equal(t, 12.5, txs[2]["amount"])
}

func TestTransactions(t *testing.T) {
	h := newHarness(t)
	token, _ := h.login(t)
	h.bank.set("/accounts/history", `{"rs":{"status":"success","history":"T1#2024-11-01#1,500.00##ACC1#Checking#ACC2#Savings#SUCCESS#Freelance%20Payment##USD|"}}`)

	code, txs := h.doList(t, "/api/transactions?page=2&account=ACC1", token)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, txs, 1)
	assert.Equal(t, "T1", txs[0]["id"])
	assert.Equal(t, 1500.0, txs[0]["amount"])
	assert.Equal(t, "Checking (ACC1)", txs[0]["fromAccount"])
	assert.Equal(t, "Freelance Payment", txs[0]["desc"])

	sent := h.bank.last("/accounts/history")
	assert.Equal(t, "2", sent["pageNo"])
	assert.Equal(t, 20.0, sent["pageSize"])
	assert.Equal(t, "ACC1", sent["accountNo"])
}

func TestEmptyPayloadIsEmptyList(t *testing.T) {
	h := newHarness(t)
	token, _ := h.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/payees", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.api.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestBankRejectionEndsSession(t *testing.T) {
	h := newHarness(t)
	token, id := h.login(t)
	h.bank.set("/payees/list", "401")

	code, body := h.do(t, http.MethodGet, "/api/payees", token, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "session expired", body["message"])
	assert.Equal(t, session.ReasonTimeout, h.store.endReason(id))
	assert.Nil(t, h.api.sessions.Get(id))
}

func TestLocations(t *testing.T) {
	h := newHarness(t)
	token, _ := h.login(t)
	h.bank.set("/locator/search", `{"rs":{"status":"success","locations":"Main%20St#1%20Main%20St#40.0,-75.0#a#555#L1#08:00#18:00"}}`)

	code, body := h.do(t, http.MethodGet, "/api/locations?lat=40.0&lng=-75.0", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	locs := body["locations"].([]interface{})
	require.Len(t, locs, 1)
	loc := locs[0].(map[string]interface{})
	assert.Equal(t, "Main St", loc["name"])
	assert.Equal(t, "ATM", loc["type"])
	assert.Equal(t, 0.0, loc["distance"])

	sent := h.bank.last("/locator/search")
	assert.Equal(t, 40.0, sent["lat"])
	assert.Equal(t, -75.0, sent["lng"])

	code, _ = h.do(t, http.MethodGet, "/api/locations?lat=north&lng=-75", token, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestReceipt(t *testing.T) {
	h := newHarness(t)
	token, _ := h.login(t)
	h.bank.set("/payments/receipt", `{"rs":{"status":"success","msg":"ok","receipt":"R-9;2024-11-02;42.50;USD;ACC1;Power%20Co;Bill"}}`)

	code, body := h.do(t, http.MethodPost, "/api/receipts/R-9", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "R-9", h.bank.last("/payments/receipt")["referenceNo"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.api.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "netbank_session_active")
}
