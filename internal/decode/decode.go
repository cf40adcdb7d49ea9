// Package decode turns the bank backend's delimiter-packed string payloads into typed records.
//
// The backend predates JSON arrays on most endpoints: a list is a single string in which records are
// separated by '|' and the fields of a record by '#' or ';'. Field position is the only schema, so every
// record type below documents the offsets it reads. All decoders are pure, safe for concurrent use, and
// total: absent or malformed input produces an empty slice, never a nil slice or a panic.
package decode

import (
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

const (
	recordSep   = "|"
	hashSep     = "#"
	semiSep     = ";"
	entrySep    = "@@"
	maxUnescape = 2
)

var decodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "netbank",
	Subsystem: "decode",
	Name:      "failures_total",
	Help:      "Number of decode calls that failed and returned an empty result.",
}, []string{"decoder"})

func init() {
	prometheus.MustRegister(decodeFailures)
}

// guard runs fn and converts a panic into an empty result. It also normalises a nil result to an
// empty slice so callers can always range over or JSON-encode the output as [].
func guard[T any](decoder string, raw string, fn func() []T) (out []T) {
	defer func() {
		if r := recover(); r != nil {
			decodeFailures.WithLabelValues(decoder).Inc()
			logger.Error().Str("decoder", decoder).Int("input_len", len(raw)).Interface("panic", r).Msg("decode failed, returning empty result")
			out = []T{}
		}
	}()
	out = fn()
	if out == nil {
		out = []T{}
	}
	return out
}

// records splits raw on '|' and then every non-blank segment on sep.
func records(raw, sep string) [][]string {
	var out [][]string
	for _, seg := range strings.Split(raw, recordSep) {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		out = append(out, strings.Split(seg, sep))
	}
	return out
}

// field returns parts[i] trimmed, or "" when the record is too short.
func field(parts []string, i int) string {
	if i < 0 || i >= len(parts) {
		return ""
	}
	return strings.TrimSpace(parts[i])
}

// text is field followed by URL-decoding.
func text(parts []string, i int) string {
	return unescape(field(parts, i))
}

// number parses a money or count field. Thousands separators are tolerated; anything else that
// does not parse to a finite value is 0, so a record can always be encoded as JSON.
func number(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// unescape percent-decodes s the way decodeURIComponent does ('+' is left alone). Some endpoints
// encode free text twice, so a second pass runs while escapes remain. On a malformed escape the
// last good value is returned.
func unescape(s string) string {
	out := s
	for i := 0; i < maxUnescape && strings.Contains(out, "%"); i++ {
		u, err := url.PathUnescape(out)
		if err != nil {
			break
		}
		out = u
	}
	return out
}

// account renders an account as "name (number)", degrading to whichever half is present.
func account(number, name string) string {
	switch {
	case name != "" && number != "":
		return name + " (" + number + ")"
	case name != "":
		return name
	default:
		return number
	}
}
