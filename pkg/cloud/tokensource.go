package cloud

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// rotatingSource is a custom oauth2.TokenSource that wraps POST
// /rotate-token: when the cached credentials are expired it rotates them
// and persists the result, rather than failing the caller. It serves the
// transport directly — Token() is a mutex acquisition and a clock check in
// the common case, so no extra caching layer sits in front of it.
type rotatingSource struct {
	client *Client

	mu      sync.Mutex
	current Credentials

	// onRotate, if set, persists a freshly rotated credential (wired to the
	// CredentialStore by the Connector).
	onRotate func(Credentials)
}

// Token implements oauth2.TokenSource.
func (s *rotatingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()

	if cur.DeviceToken == "" {
		return nil, ErrNoCredentials
	}

	if !cur.Expired() {
		return &oauth2.Token{AccessToken: cur.DeviceToken, Expiry: cur.TokenExpiresAt}, nil
	}

	rotated, err := s.client.rotateToken(context.Background(), cur)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = rotated
	onRotate := s.onRotate
	s.mu.Unlock()

	if onRotate != nil {
		onRotate(rotated)
	}

	return &oauth2.Token{AccessToken: rotated.DeviceToken, Expiry: rotated.TokenExpiresAt}, nil
}
