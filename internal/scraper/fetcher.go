package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"

	fetchhttp "github.com/catalogsync/import-service/internal/http"
	"github.com/catalogsync/import-service/internal/types"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidURL rejects anything but absolute http(s) URLs
	ErrInvalidURL = errors.New("invalid product URL")
	// ErrBlockedHost rejects hosts resolving to loopback, private, link-local
	// or otherwise non-public addresses. It is always wrapped with ErrInvalidURL.
	ErrBlockedHost = errors.New("product URL host is not a public address")
)

// Resolver looks up the addresses of a host; *net.Resolver satisfies it
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// PageGetter downloads a page body
type PageGetter interface {
	GetBytes(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads supplier product pages and extracts products from them
type Fetcher struct {
	client       PageGetter
	resolver     Resolver
	allowPrivate bool
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithResolver replaces net.DefaultResolver for host checks
func WithResolver(r Resolver) FetcherOption {
	return func(f *Fetcher) {
		f.resolver = r
	}
}

// WithPrivateHosts disables the public-address check, for local development
// against servers on loopback
func WithPrivateHosts() FetcherOption {
	return func(f *Fetcher) {
		f.allowPrivate = true
	}
}

// NewFetcher creates a fetcher over the given client; nil uses the default
// rate-limited client. Hosts resolving to non-public addresses are refused
// unless WithPrivateHosts is given.
func NewFetcher(client PageGetter, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = fetchhttp.NewClientDefault()
	}
	f := &Fetcher{client: client, resolver: net.DefaultResolver}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns the page body with the normalized URL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if !f.allowPrivate {
		if err := f.checkHost(ctx, u.Hostname()); err != nil {
			return nil, "", err
		}
	}

	body, err := f.client.GetBytes(ctx, u.String())
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", u.Host, err)
	}
	log.Info().
		Str("host", u.Host).
		Int("bytes", len(body)).
		Msg("Fetched product page")
	return body, u.String(), nil
}

// Scrape fetches rawURL and runs Extract on the page
func (f *Fetcher) Scrape(ctx context.Context, rawURL string) (*types.ParseResult, error) {
	body, pageURL, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return Extract(body, pageURL)
}

// checkHost refuses hosts with any non-public address. The check runs before
// the request, so a host that re-resolves between check and dial is not covered.
func (f *Fetcher) checkHost(ctx context.Context, host string) error {
	addrs := make([]netip.Addr, 0, 1)
	if ip, err := netip.ParseAddr(host); err == nil {
		addrs = append(addrs, ip)
	} else {
		resolved, err := f.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", host, err)
		}
		addrs = append(addrs, resolved...)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no address for %s", ErrInvalidURL, host)
	}
	for _, addr := range addrs {
		if !isPublic(addr) {
			log.Warn().Str("host", host).Str("addr", addr.String()).Msg("Refused non-public scrape target")
			return fmt.Errorf("%w: %w: %s", ErrInvalidURL, ErrBlockedHost, host)
		}
	}
	return nil
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified() &&
		!cgnat.Contains(addr)
}

// carrier-grade NAT range, not covered by IsPrivate
var cgnat = netip.MustParsePrefix("100.64.0.0/10")
