package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/internal/urlcheck"
)

// fieldHints tells the search engine what evidence counts for a field.
var fieldHints = map[model.Field]string{
	model.FieldRevenue:           "the most recent annual revenue or ARR figure, with the fiscal year",
	model.FieldFundingTotal:      "the total venture funding raised to date, as reported in a funding announcement or database",
	model.FieldEmployeeCount:     "the current number of employees",
	model.FieldCEO:               "the name of the current chief executive officer",
	model.FieldPricingModel:      "the pricing model (per seat, usage based, flat rate, tiered or custom quote)",
	model.FieldBasePrice:         "the price of the cheapest paid plan, with its billing period",
	model.FieldCustomerCount:     "the number of customers the company reports",
	model.FieldValuation:         "the most recent reported valuation and the round it was set in",
	model.FieldFoundedYear:       "the year the company was founded",
	model.FieldHeadquarters:      "the city and country of the company headquarters",
	model.FieldTargetMarket:      "the customer segments and industries the company sells to",
	model.FieldKeyCustomers:      "named customers publicly referenced by the company",
	model.FieldProductLines:      "the company's main products or product lines",
	model.FieldG2Rating:          "the average star rating on G2",
	model.FieldGlassdoorRating:   "the overall employee rating on Glassdoor",
	model.FieldLinkedInFollowers: "the number of followers on the company LinkedIn page",
	model.FieldTechStack:         "the main technologies the product is built on",
	model.FieldPartnerships:      "announced technology or channel partnerships",
}

// FieldPrompt builds the grounded-search question for one field.
func FieldPrompt(c *model.Competitor, desc model.FieldDescriptor) string {
	subject := c.Name
	if c.Website != "" {
		subject = fmt.Sprintf("%s (%s)", c.Name, c.Website)
	}
	want := fieldHints[desc.Name]
	if want == "" {
		want = strings.ToLower(desc.Label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Find a publicly accessible web page that states %s for the company %s.\n", want, subject)
	switch desc.Kind {
	case model.KindNumeric:
		b.WriteString("Quote the exact figure as written on the page.\n")
	case model.KindDate:
		b.WriteString("Quote the year exactly as written on the page.\n")
	}
	b.WriteString("Prefer regulatory filings, the company's own site, analyst reports and reputable press over aggregators.\n")
	b.WriteString("Answer in two lines: the value, then the full source URL.")
	return b.String()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slug turns a company name into the path segment most directories use.
func slug(name string) string {
	s := strings.ToLower(name)
	for _, suffix := range []string{", inc.", " inc.", " inc", " llc", " ltd", " corp."} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.Trim(nonSlug.ReplaceAllString(s, "-"), "-")
}

// FallbackURLs returns deterministic candidate pages for a field, keyed by
// its category, in the order they should be tried.
func FallbackURLs(c *model.Competitor, desc model.FieldDescriptor) []string {
	s := slug(c.Name)
	site := urlcheck.Normalize(c.Website)

	linkedin := "https://www.linkedin.com/company/" + s
	crunchbase := "https://www.crunchbase.com/organization/" + s
	g2 := "https://www.g2.com/products/" + s + "/reviews"
	glassdoor := "https://www.glassdoor.com/Search/results.htm?keyword=" + url.QueryEscape(c.Name)

	var out []string
	// Empty entries and slug-less directory paths are dropped.
	add := func(urls ...string) {
		for _, u := range urls {
			if u != "" && !strings.HasSuffix(u, "/") {
				out = append(out, u)
			}
		}
	}
	join := func(path string) string {
		if site == "" {
			return ""
		}
		return site + path
	}

	switch desc.Category {
	case model.CategoryFinancial:
		add(crunchbase)
	case model.CategoryWorkforce, model.CategoryLeadership:
		add(linkedin)
	case model.CategoryReviews:
		if desc.Name == model.FieldGlassdoorRating {
			add(glassdoor)
		} else {
			add(g2)
		}
	case model.CategoryPricing:
		add(join("/pricing"), site)
	case model.CategoryProduct:
		add(join("/products"), site)
	case model.CategoryMarket:
		add(join("/customers"), site)
	default:
		add(site)
	}
	return out
}
