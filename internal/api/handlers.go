package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/susu3304/netbank/internal/banking"
	"github.com/susu3304/netbank/internal/db"
	"github.com/susu3304/netbank/internal/geo"
	"github.com/susu3304/netbank/internal/session"
)

// Session handlers
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, monitorFrom(r).Snapshot())
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errorf(http.StatusBadRequest, "invalid request body"))
		return
	}
	if !session.QualifyingActivity(req.Kind) {
		writeError(w, errorf(http.StatusBadRequest, "unsupported activity %q", req.Kind))
		return
	}

	mon := monitorFrom(r)
	recorded := mon.OnActivity(req.Kind)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recorded": recorded,
		"session":  mon.Snapshot(),
	})
}

// handleSessionClose detaches the session's monitor when the client goes away. Its timers are
// cleared without a logout; the reaper ends the persisted session once it has been idle too long.
func (a *API) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	id := monitorFrom(r).ID()
	a.sessions.Remove(id)
	a.client.Dismiss(id)
	writeSuccess(w, "session closed")
}

const (
	choiceContinue = "continue"
	choiceLogout   = "logout"
)

// handlePrompt answers the pending expiry prompt through the callbacks the monitor attached to it.
func (a *API) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errorf(http.StatusBadRequest, "invalid request body"))
		return
	}

	mon := monitorFrom(r)
	p, ok := a.client.prompt(mon.ID())
	if !ok || mon.State() != session.StatePromptPending {
		a.client.Dismiss(mon.ID())
		writeError(w, errorf(http.StatusConflict, "no pending prompt"))
		return
	}

	switch req.Choice {
	case choiceContinue:
		p.OnConfirm()
		writeJSON(w, http.StatusOK, mon.Snapshot())
	case choiceLogout:
		p.OnCancel()
		writeJSON(w, http.StatusOK, Message{Type: MessageSuccess, Message: "logged out", Redirect: a.client.redirect(mon.ID())})
	default:
		writeError(w, errorf(http.StatusBadRequest, "choice must be %q or %q", choiceContinue, choiceLogout))
	}
}

// Banking handlers

// accessToken returns the bank token of the request's session.
func (a *API) accessToken(r *http.Request) (string, error) {
	ws, err := a.store.GetSession(r.Context(), claimsFrom(r).SessionID)
	if errors.Is(err, db.ErrNotFound) {
		return "", errorf(http.StatusUnauthorized, "session expired")
	}
	if err != nil {
		return "", err
	}
	if ws.AccessToken == "" {
		return "", errorf(http.StatusUnauthorized, "session expired")
	}
	return ws.AccessToken, nil
}

// bankError maps a backend failure to a reply. A rejected token means the bank ended the session,
// so the local one is ended too.
func (a *API) bankError(r *http.Request, err error) error {
	if errors.Is(err, banking.ErrUnauthorized) {
		monitorFrom(r).Logout(session.ReasonTimeout)
		return errorf(http.StatusUnauthorized, "session expired")
	}
	logger.Warn().Err(err).Str("path", r.URL.Path).Msg("bank call failed")
	return errorf(http.StatusBadGateway, "bank service unavailable")
}

// queryFields copies the listed query parameters into request fields, renamed to the backend's
// names.
func queryFields(r *http.Request, names map[string]string) map[string]interface{} {
	fields := map[string]interface{}{}
	q := r.URL.Query()
	for param, field := range names {
		if v := q.Get(param); v != "" {
			fields[field] = v
		}
	}
	return fields
}

var (
	historyParams   = map[string]string{"account": "accountNo", "page": "pageNo", "size": "pageSize", "from": "fromDate", "to": "toDate"}
	accountParams   = map[string]string{"account": "accountNo"}
	locationsParams = map[string]string{"type": "type", "radius": "radius"}
)

// handleAccounts serves the account list cached at login.
func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	payload, err := a.store.GetAccounts(r.Context(), claimsFrom(r).SessionID)
	if errors.Is(err, db.ErrNotFound) {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(payload))
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := a.bank.TransactionHistory(r.Context(), token, queryFields(r, historyParams))
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (a *API) handleScheduledPayments(w http.ResponseWriter, r *http.Request) {
	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payments, err := a.bank.ScheduledPayments(r.Context(), token, queryFields(r, accountParams))
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (a *API) handlePayees(w http.ResponseWriter, r *http.Request) {
	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	payees, err := a.bank.Payees(r.Context(), token, nil)
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, payees)
}

func (a *API) handleLocations(w http.ResponseWriter, r *http.Request) {
	var origin *geo.Point
	lat, lng := r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
	if lat != "" || lng != "" {
		p, ok := geo.ParseLatLng(lat + "," + lng)
		if !ok {
			writeError(w, errorf(http.StatusBadRequest, "invalid lat/lng"))
			return
		}
		origin = &p
	}

	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.bank.Locations(r.Context(), token, origin, queryFields(r, locationsParams))
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	set, err := a.bank.Notifications(r.Context(), token)
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (a *API) handleStatements(w http.ResponseWriter, r *http.Request) {
	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	statements, err := a.bank.Statements(r.Context(), token, queryFields(r, accountParams))
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, statements)
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	token, err := a.accessToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.bank.Receipt(r.Context(), token, ref)
	if err != nil {
		writeError(w, a.bankError(r, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
