package ingest

import (
	"net/url"
	"strings"

	"github.com/ppiankov/rectify/internal/model"
)

// AuthorityClassifier classifies guideline publishers into authority tiers
type AuthorityClassifier struct {
	primary   []string
	secondary []string
}

// NewAuthorityClassifier creates a classifier from configured domain lists
func NewAuthorityClassifier(cfg model.AuthorityConfig) *AuthorityClassifier {
	return &AuthorityClassifier{
		primary:   normalizeDomains(cfg.PrimaryDomains),
		secondary: normalizeDomains(cfg.SecondaryDomains),
	}
}

// Classify returns the tier of the page's host. A domain also matches its
// subdomains; .gov, .edu and .ac.uk hosts are primary unless configured
// otherwise.
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return model.TierTertiary
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	if matchesDomain(host, a.primary) {
		return model.TierPrimary
	}
	if matchesDomain(host, a.secondary) {
		return model.TierSecondary
	}

	// Common TLDs that often indicate authority
	for _, suffix := range []string{".gov", ".edu", ".ac.uk", ".nhs.uk"} {
		if strings.HasSuffix(host, suffix) {
			return model.TierPrimary
		}
	}

	return model.TierTertiary
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}
