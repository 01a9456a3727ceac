// Package retry decides what to do with a failed scrape attempt:
// retry after a wait, or stop with a failure classification.
package retry

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/po4yka/pocket-gpt/internal/domain"
	"github.com/po4yka/pocket-gpt/internal/firecrawl"
)

// Decision is the explicit outcome of a failed attempt. A terminal
// decision ends the record's enrichment for this session; otherwise
// the caller sleeps Wait and retries.
type Decision struct {
	Terminal bool
	Wait     time.Duration
	Type     domain.FetchErrorType
	Message  string
}

// Config holds retry parameters.
type Config struct {
	MaxRetries int           // retries after the initial attempt
	MinWait    time.Duration // lower bound for every backoff wait
}

// Policy classifies failures and computes backoff waits.
type Policy struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Policy. Zero fields default to 3 retries and a 3s
// minimum wait.
func New(cfg Config, logger *slog.Logger) *Policy {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MinWait == 0 {
		cfg.MinWait = 3 * time.Second
	}
	return &Policy{cfg: cfg, logger: logger, now: time.Now}
}

// Domains that block scrapers as a matter of policy. Requests for
// these are expected to fail and should be filtered before the first
// network attempt so they never consume rate-limit budget.
var socialMediaDomains = map[string]struct{}{
	"twitter.com":   {},
	"x.com":         {},
	"facebook.com":  {},
	"instagram.com": {},
	"linkedin.com":  {},
	"tiktok.com":    {},
	"reddit.com":    {},
}

// IsSocialMedia reports whether the URL host belongs to the denylist,
// including subdomains.
func IsSocialMedia(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for d := range socialMediaDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Precheck classifies a record before any network attempt. It returns
// a terminal decision for records with no URL or a denylisted host,
// and ok=false when the record may proceed to the network.
func (p *Policy) Precheck(rawURL string) (Decision, bool) {
	if rawURL == "" {
		return Decision{
			Terminal: true,
			Type:     domain.ErrorNoURL,
			Message:  "no URL provided for article",
		}, true
	}
	if IsSocialMedia(rawURL) {
		return Decision{
			Terminal: true,
			Type:     domain.ErrorSocialMedia,
			Message:  fmt.Sprintf("social media URL is not fetchable: %s", rawURL),
		}, true
	}
	return Decision{}, false
}

// Decide classifies a failed attempt. retries is the number of retries
// already made (0 on the first failure).
func (p *Policy) Decide(rawURL string, retries int, err error) Decision {
	var statusErr *firecrawl.StatusError
	switch {
	case errors.As(err, &statusErr):
		return p.decideStatus(rawURL, retries, statusErr)
	case errors.Is(err, firecrawl.ErrNoContent):
		return Decision{
			Terminal: true,
			Type:     domain.ErrorAPI,
			Message:  err.Error(),
		}
	case isNetworkError(err):
		if retries >= p.cfg.MaxRetries {
			return Decision{
				Terminal: true,
				Type:     domain.ErrorNetwork,
				Message:  fmt.Sprintf("network error after %d retries: %v", retries, err),
			}
		}
		// Flat backoff: connection failures are not capacity-based.
		return Decision{
			Wait:    p.cfg.MinWait,
			Type:    domain.ErrorNetwork,
			Message: err.Error(),
		}
	default:
		return Decision{
			Terminal: true,
			Type:     domain.ErrorUnknown,
			Message:  err.Error(),
		}
	}
}

func (p *Policy) decideStatus(rawURL string, retries int, statusErr *firecrawl.StatusError) Decision {
	switch statusErr.Code {
	case 429:
		if retries >= p.cfg.MaxRetries {
			return Decision{
				Terminal: true,
				Type:     domain.ErrorRateLimit,
				Message:  fmt.Sprintf("rate limited after %d retries", retries),
			}
		}
		wait := p.rateLimitWait(statusErr.Body, retries)
		return Decision{
			Wait:    wait,
			Type:    domain.ErrorRateLimit,
			Message: statusErr.Error(),
		}
	case 403:
		// Forbidden is never retried. Split expected social-media
		// blocks from generic ones so they can be reported apart.
		if IsSocialMedia(rawURL) {
			return Decision{
				Terminal: true,
				Type:     domain.ErrorSocialMedia,
				Message:  statusErr.Error(),
			}
		}
		return Decision{
			Terminal: true,
			Type:     domain.ErrorBlockedURL,
			Message:  statusErr.Error(),
		}
	default:
		return Decision{
			Terminal: true,
			Type:     domain.ErrorAPI,
			Message:  statusErr.Error(),
		}
	}
}

var (
	remainingRe = regexp.MustCompile(`Remaining \(req/min\): (\d+)`)
	resetAtRe   = regexp.MustCompile(`resets at ([A-Za-z]{3} [A-Za-z]{3} \d{1,2} \d{4} \d{2}:\d{2}:\d{2} GMT)`)
)

const resetLayout = "Mon Jan 2 2006 15:04:05 GMT"

// rateLimitWait derives the wait from a 429 body and applies the
// exponential multiplier. Parse failure is the common case and falls
// back to the minimum wait.
func (p *Policy) rateLimitWait(body string, retries int) time.Duration {
	parsed := p.cfg.MinWait

	if m := resetAtRe.FindStringSubmatch(body); m != nil {
		if resetAt, err := time.Parse(resetLayout, m[1]); err == nil {
			if until := resetAt.Sub(p.now().UTC()); until > parsed {
				parsed = until
			}
		} else {
			p.logger.Debug("unparseable rate-limit reset timestamp",
				"value", m[1], "error", err)
		}
	} else {
		p.logger.Debug("rate-limit body carries no reset timestamp")
	}

	if m := remainingRe.FindStringSubmatch(body); m != nil {
		remaining, _ := strconv.Atoi(m[1])
		p.logger.Debug("rate-limit remaining reported", "remaining", remaining)
	}

	wait := parsed * (1 << retries)
	if wait < p.cfg.MinWait {
		wait = p.cfg.MinWait
	}
	return wait
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
