package credential

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// endpoints maps a platform to its OAuth2 authorization-code endpoint.
// Platforms that don't use OAuth2 (e.g. vrchat, obs) are absent and
// Refresher.Refresh returns errs.Platform for them.
var endpoints = map[string]oauth2.Endpoint{
	"twitch_irc":      twitchEndpoint,
	"twitch_eventsub": twitchEndpoint,
	"discord":         discordEndpoint,
}

var twitchEndpoint = oauth2.Endpoint{
	AuthURL:  "https://id.twitch.tv/oauth2/authorize",
	TokenURL: "https://id.twitch.tv/oauth2/token",
}

var discordEndpoint = oauth2.Endpoint{
	AuthURL:  "https://discord.com/api/oauth2/authorize",
	TokenURL: "https://discord.com/api/oauth2/token",
}

// refreshedToken is what a successful refresh yields.
type refreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cfg *model.PlatformConfig, refreshToken string) (refreshedToken, error)
	AuthCodeURL(cfg *model.PlatformConfig, redirectURL, state string) (string, error)
	Exchange(ctx context.Context, cfg *model.PlatformConfig, redirectURL, code string) (refreshedToken, error)
}

// oauthRefresher is the default Refresher, backed by golang.org/x/oauth2,
// with one circuit breaker per platform so a provider outage fails fast
// instead of stacking up retries against a dead token endpoint.
type oauthRefresher struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newOAuthRefresher() *oauthRefresher {
	return &oauthRefresher{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *oauthRefresher) breakerFor(platform string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[platform]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "oauth-" + platform,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	r.breakers[platform] = cb
	return cb
}

func (r *oauthRefresher) config(cfg *model.PlatformConfig, redirectURL string) (*oauth2.Config, error) {
	endpoint, ok := endpoints[cfg.Platform]
	if !ok {
		return nil, errs.Newf(errs.Platform, "credential: platform %q has no oauth2 endpoint", cfg.Platform)
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       cfg.Scopes,
		RedirectURL:  redirectURL,
	}, nil
}

func (r *oauthRefresher) AuthCodeURL(cfg *model.PlatformConfig, redirectURL, state string) (string, error) {
	oc, err := r.config(cfg, redirectURL)
	if err != nil {
		return "", err
	}
	return oc.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

func (r *oauthRefresher) Exchange(ctx context.Context, cfg *model.PlatformConfig, redirectURL, code string) (refreshedToken, error) {
	oc, err := r.config(cfg, redirectURL)
	if err != nil {
		return refreshedToken{}, err
	}

	cb := r.breakerFor(cfg.Platform)
	result, err := cb.Execute(func() (any, error) {
		tok, err := oc.Exchange(ctx, code)
		if err != nil {
			return nil, errs.Wrap(errs.Auth, err, "credential: exchange authorization code")
		}
		return tok, nil
	})
	if err != nil {
		return refreshedToken{}, err
	}
	return toRefreshedToken(result.(*oauth2.Token)), nil
}

func (r *oauthRefresher) Refresh(ctx context.Context, cfg *model.PlatformConfig, refreshToken string) (refreshedToken, error) {
	oc, err := r.config(cfg, "")
	if err != nil {
		return refreshedToken{}, err
	}

	cb := r.breakerFor(cfg.Platform)
	result, err := cb.Execute(func() (any, error) {
		src := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return nil, errs.Wrap(errs.Auth, err, "credential: refresh token")
		}
		return tok, nil
	})
	if err != nil {
		return refreshedToken{}, err
	}
	return toRefreshedToken(result.(*oauth2.Token)), nil
}

func toRefreshedToken(tok *oauth2.Token) refreshedToken {
	out := refreshedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	return out
}
