package decode

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Envelope field names carrying delimited payloads.
const (
	FieldTransactions      = "history"
	FieldScheduledPayments = "schedules"
	FieldPayees            = "payees"
	FieldLocations         = "locations"
	FieldStatements        = "statements"
	FieldReceipt           = "receipt"
	FieldNotifications     = "notifications"
)

// Parse parses a raw backend reply.
func Parse(body []byte) gjson.Result {
	return gjson.ParseBytes(body)
}

// Unwrap returns the "rs" object when the reply has one and the reply itself otherwise. Endpoints
// are inconsistent about wrapping, so every reader goes through here.
func Unwrap(env gjson.Result) gjson.Result {
	if rs := env.Get("rs"); rs.IsObject() {
		return rs
	}
	return env
}

// Lookup reads path under "rs" first, then at top level.
func Lookup(env gjson.Result, path string) gjson.Result {
	if v := env.Get("rs." + path); v.Exists() {
		return v
	}
	return env.Get(path)
}

// Field returns the string value at name, "" when absent.
func Field(env gjson.Result, name string) string {
	return Lookup(env, name).String()
}

func Status(env gjson.Result) string {
	return Field(env, "status")
}

// Message returns the URL-decoded "msg" of the envelope.
func Message(env gjson.Result) string {
	return unescape(Field(env, "msg"))
}

// Succeeded reports whether the envelope status is "success".
func Succeeded(env gjson.Result) bool {
	return strings.EqualFold(strings.TrimSpace(Status(env)), "success")
}

// SessionTimeouts reads the server-delivered idle timeout ("tn.to") and prompt offset ("tn.tofset"),
// both in minutes. ok is false unless both are present and 0 < offset < timeout.
func SessionTimeouts(env gjson.Result) (timeout, offset time.Duration, ok bool) {
	to := Lookup(env, "tn.to")
	off := Lookup(env, "tn.tofset")
	if !to.Exists() || !off.Exists() {
		return 0, 0, false
	}
	timeout = time.Duration(to.Float() * float64(time.Minute))
	offset = time.Duration(off.Float() * float64(time.Minute))
	if timeout <= 0 || offset <= 0 || offset >= timeout {
		return 0, 0, false
	}
	return timeout, offset, true
}
