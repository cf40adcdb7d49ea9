package banking

import "context"

// Session binds a Client to one access token. It is the backend a session.Monitor talks to.
type Session struct {
	Client      *Client
	AccessToken string
}

func (c *Client) ForToken(accessToken string) *Session {
	return &Session{Client: c, AccessToken: accessToken}
}

func (s *Session) RefreshSession(ctx context.Context) error {
	return s.Client.RefreshSession(ctx, s.AccessToken)
}

func (s *Session) ExtendSessionTimeout(ctx context.Context) error {
	return s.Client.ExtendSessionTimeout(ctx, s.AccessToken)
}

func (s *Session) Logout(ctx context.Context) error {
	return s.Client.Logout(ctx, s.AccessToken)
}
