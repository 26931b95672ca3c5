package urlcheck

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/sells-group/competitor-intel/internal/model"
)

// domainTypes maps registrable domains to the source type they imply.
var domainTypes = map[string]model.SourceType{
	"sec.gov":          model.SourceRegulatoryFiling,
	"linkedin.com":     model.SourceLinkedIn,
	"glassdoor.com":    model.SourceGlassdoor,
	"g2.com":           model.SourceReviewSite,
	"capterra.com":     model.SourceReviewSite,
	"trustradius.com":  model.SourceReviewSite,
	"gartner.com":      model.SourceAnalystReport,
	"forrester.com":    model.SourceAnalystReport,
	"idc.com":          model.SourceAnalystReport,
	"reuters.com":      model.SourceNewsArticle,
	"bloomberg.com":    model.SourceNewsArticle,
	"techcrunch.com":   model.SourceNewsArticle,
	"businesswire.com": model.SourceNewsArticle,
	"prnewswire.com":   model.SourceNewsArticle,
	"x.com":            model.SourceSocialMedia,
	"twitter.com":      model.SourceSocialMedia,
	"facebook.com":     model.SourceSocialMedia,
	"instagram.com":    model.SourceSocialMedia,
	"youtube.com":      model.SourceSocialMedia,
}

// Classify returns the source type a URL implies. Subdomains inherit their
// parent's type. The competitor's own domain is a website scrape; anything
// unrecognised is auto_discovery.
func Classify(rawURL, competitorWebsite string) model.SourceType {
	domain := RegistrableDomain(rawURL)
	if domain == "" {
		return model.SourceAutoDiscovery
	}
	if t, ok := domainTypes[domain]; ok {
		return t
	}
	if own := RegistrableDomain(competitorWebsite); own != "" && own == domain {
		return model.SourceWebsiteScrape
	}
	return model.SourceAutoDiscovery
}

// RegistrableDomain returns the eTLD+1 of a URL or bare host, lowercased
// ("https://ir.acme.co.uk/x" gives "acme.co.uk"). It returns "" when
// nothing host-like can be parsed.
func RegistrableDomain(raw string) string {
	host := Host(raw)
	if host == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// Host extracts the lowercased hostname, tolerating a missing scheme.
func Host(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\x60\]\[(){}|\\^]+`)

// ExtractURL returns the first http(s) URL in text with trailing
// punctuation removed, or "".
func ExtractURL(text string) string {
	m := urlPattern.FindString(text)
	return strings.TrimRight(m, ".,;:!?*")
}

// Normalize ensures a scheme and strips a trailing slash from the root path.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
