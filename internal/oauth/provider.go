// Package oauth turns an authorization code from an external provider into a
// verified profile the auth core can log in.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"authority/internal/domain"

	"golang.org/x/oauth2"
)

var ErrNoVerifiedEmail = errors.New("provider returned no verified email")

// Provider is one OAuth identity source.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	ResolveProfile(ctx context.Context, code string) (domain.ExternalProfile, error)
}

// Credentials are the client registration values for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func (c Credentials) Enabled() bool { return c.ClientID != "" && c.ClientSecret != "" }

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderUnknown, name)
	}
	return p, nil
}

// Names lists the configured providers in a stable order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

const maxProfileBody = 1 << 20

// getJSON performs an authenticated GET with the exchanged token.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBody))
		return fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBody)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func exchange(ctx context.Context, conf *oauth2.Config, code string) (*http.Client, error) {
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return conf.Client(ctx, tok), nil
}
