package banking

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/susu3304/netbank/internal/decode"
)

// Profile is the signed-in customer as reported by the backend.
type Profile struct {
	UserID      string
	DisplayName string
	// Server-delivered idle timeout and prompt offset; zero when the backend sent none.
	Timeout      time.Duration
	PromptOffset time.Duration
	// Accounts is the raw account list, cached per session.
	Accounts gjson.Result
}

func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	env, err := c.Call(ctx, accessToken, EndpointProfile, nil)
	if err != nil {
		return nil, err
	}
	if st := decode.Status(env); st != "" && !decode.Succeeded(env) {
		return nil, fmt.Errorf("profile: %s", decode.Message(env))
	}
	p := &Profile{
		UserID:      decode.Field(env, "userId"),
		DisplayName: decode.Field(env, "name"),
		Accounts:    decode.Lookup(env, "accounts"),
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("profile: response has no userId")
	}
	if to, off, ok := decode.SessionTimeouts(env); ok {
		p.Timeout, p.PromptOffset = to, off
	}
	return p, nil
}
