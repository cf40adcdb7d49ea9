package api

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/susu3304/netbank/internal/session"
)

// A redirect is kept long enough for a client that polls /api/session to pick it up.
const redirectTTL = 30 * time.Minute

// clientChannel is how monitors reach the browser. The web client has no push channel, so the
// pending prompt and the last redirect are held here and served on its next request.
type clientChannel struct {
	mu        sync.Mutex
	prompts   map[string]session.Prompt
	redirects *ttlcache.Cache[string, string]
}

func newClientChannel() *clientChannel {
	return &clientChannel{
		prompts: make(map[string]session.Prompt),
		redirects: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](redirectTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

func (c *clientChannel) start() { c.redirects.Start() }

func (c *clientChannel) stop() { c.redirects.Stop() }

// Confirm implements session.Prompter.
func (c *clientChannel) Confirm(sessionID string, p session.Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts[sessionID] = p
}

// Dismiss implements session.Prompter.
func (c *clientChannel) Dismiss(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prompts, sessionID)
}

// Redirect implements session.Navigator.
func (c *clientChannel) Redirect(sessionID, route string) {
	c.redirects.Set(sessionID, route, ttlcache.DefaultTTL)
}

func (c *clientChannel) prompt(sessionID string) (session.Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prompts[sessionID]
	return p, ok
}

// redirect returns where an ended session was sent, or session.EntryRoute when nothing is known.
func (c *clientChannel) redirect(sessionID string) string {
	if item := c.redirects.Get(sessionID); item != nil {
		return item.Value()
	}
	return session.EntryRoute
}
