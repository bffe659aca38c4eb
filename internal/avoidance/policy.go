package avoidance

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go-tube-download/internal/models"

	log "github.com/sirupsen/logrus"
)

// Identity is one browser persona requests can be shaped as.
type Identity struct {
	UserAgent string
	Platform  string
}

// identities is the fixed pool of realistic browser personas.
var identities = []Identity{
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Platform:  `"Windows"`,
	},
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Platform:  `"macOS"`,
	},
	{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		Platform:  `"Linux"`,
	},
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		Platform:  `"Windows"`,
	},
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
		Platform:  `"macOS"`,
	},
}

// Options configures a Policy. Zero values fall back to the defaults used in
// production (3 requests per rolling 60s, 1-3s jitter).
type Options struct {
	MaxRequests int
	Window      time.Duration
	JitterMin   time.Duration
	JitterMax   time.Duration
}

// Policy paces outbound platform requests and supplies per-request browser
// identities. All methods are safe for concurrent use.
type Policy struct {
	maxRequests int
	window      time.Duration
	jitterMin   time.Duration
	jitterMax   time.Duration

	mu     sync.Mutex
	stamps []time.Time
	rand   *rand.Rand

	// now is swappable in tests
	now func() time.Time
}

// NewPolicy builds a Policy from the given options.
func NewPolicy(opts Options) *Policy {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 3
	}
	if opts.Window <= 0 {
		opts.Window = 60 * time.Second
	}
	if opts.JitterMin < 0 {
		opts.JitterMin = 0
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	return &Policy{
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		jitterMin:   opts.JitterMin,
		jitterMax:   opts.JitterMax,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
}

// SelectIdentity picks a persona uniformly at random. Selection happens per
// call, so consecutive requests may present different identities.
func (p *Policy) SelectIdentity() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return identities[p.rand.Intn(len(identities))]
}

// Identities returns a copy of the persona pool.
func Identities() []Identity {
	out := make([]Identity, len(identities))
	copy(out, identities)
	return out
}

// Headers returns the header set for a persona. The values vary only with
// the identity so one session stays self-consistent.
func Headers(id Identity) map[string]string {
	headers := map[string]string{
		"User-Agent":      id.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Sec-Fetch-Dest":  "document",
		"Sec-Fetch-Mode":  "navigate",
		"Sec-Fetch-Site":  "none",
	}
	if strings.Contains(id.UserAgent, "Chrome/") {
		headers["Sec-Ch-Ua-Platform"] = id.Platform
	}
	return headers
}

// CookieHeader serializes cookies into a single Cookie header value.
func CookieHeader(cookies []models.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// BeforeRequest blocks until the caller may issue a platform request: it
// waits out the sliding-window rate limit, then applies the randomized
// delay. Context cancellation aborts the wait.
func (p *Policy) BeforeRequest(ctx context.Context) error {
	for {
		wait := p.tryAcquire()
		if wait <= 0 {
			break
		}
		log.Debugf("Rate limit reached, waiting %v before next request", wait)
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}

	delay := p.jitter()
	if delay > 0 {
		log.Debugf("Applying pre-request delay of %v", delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// tryAcquire records a request timestamp if the window has room, otherwise
// returns how long until the oldest stamp leaves the window.
func (p *Policy) tryAcquire() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	cutoff := now.Add(-p.window)

	kept := p.stamps[:0]
	for _, s := range p.stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	p.stamps = kept

	if len(p.stamps) < p.maxRequests {
		p.stamps = append(p.stamps, now)
		return 0
	}
	return p.stamps[0].Sub(cutoff)
}

// jitter draws a uniform delay from [jitterMin, jitterMax].
func (p *Policy) jitter() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jitterMax <= p.jitterMin {
		return p.jitterMin
	}
	span := p.jitterMax - p.jitterMin
	return p.jitterMin + time.Duration(p.rand.Int63n(int64(span)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
