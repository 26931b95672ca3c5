package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Field names a tracked competitor attribute.
type Field string

// Tracked competitor attributes.
const (
	FieldRevenue           Field = "revenue"
	FieldFundingTotal      Field = "funding_total"
	FieldEmployeeCount     Field = "employee_count"
	FieldCEO               Field = "ceo"
	FieldPricingModel      Field = "pricing_model"
	FieldBasePrice         Field = "base_price"
	FieldCustomerCount     Field = "customer_count"
	FieldValuation         Field = "valuation"
	FieldFoundedYear       Field = "founded_year"
	FieldHeadquarters      Field = "headquarters"
	FieldTargetMarket      Field = "target_market"
	FieldKeyCustomers      Field = "key_customers"
	FieldProductLines      Field = "product_lines"
	FieldG2Rating          Field = "g2_rating"
	FieldGlassdoorRating   Field = "glassdoor_rating"
	FieldLinkedInFollowers Field = "linkedin_followers"
	FieldTechStack         Field = "tech_stack"
	FieldPartnerships      Field = "partnerships"
	FieldDescription       Field = "description"
	FieldTagline           Field = "tagline"
	FieldWebsite           Field = "website"
	FieldSocialPresence    Field = "social_presence"
)

// ValueKind describes how a field's values are compared and prompted for.
type ValueKind string

const (
	KindNumeric ValueKind = "numeric"
	KindDate    ValueKind = "date"
	KindEnum    ValueKind = "enum"
	KindString  ValueKind = "string"
)

// PriorityTier orders fields for discovery. P0 is processed first.
type PriorityTier int

const (
	P0 PriorityTier = iota
	P1
	P2
	P3
)

func (p PriorityTier) String() string {
	switch p {
	case P0:
		return "P0"
	case P1:
		return "P1"
	case P2:
		return "P2"
	case P3:
		return "P3"
	default:
		return "unknown"
	}
}

// ParseTier parses "P0".."P3" (case-insensitive).
func ParseTier(s string) (PriorityTier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P0":
		return P0, nil
	case "P1":
		return P1, nil
	case "P2":
		return P2, nil
	case "P3":
		return P3, nil
	}
	return 0, eris.Errorf("model: unknown priority tier %q", s)
}

// FieldCategory groups fields by the kind of page that usually evidences them.
type FieldCategory string

const (
	CategoryFinancial  FieldCategory = "financial"
	CategoryLeadership FieldCategory = "leadership"
	CategoryWorkforce  FieldCategory = "workforce"
	CategoryProduct    FieldCategory = "product"
	CategoryPricing    FieldCategory = "pricing"
	CategoryReviews    FieldCategory = "reviews"
	CategoryMarket     FieldCategory = "market"
	CategoryGeneral    FieldCategory = "general"
)

// FieldDescriptor is the static metadata for one tracked field.
type FieldDescriptor struct {
	Name     Field         `json:"name"`
	Label    string        `json:"label"`
	Kind     ValueKind     `json:"kind"`
	Tier     PriorityTier  `json:"tier"`
	Category FieldCategory `json:"category"`
	Critical bool          `json:"critical"`
}

// Registry lists every tracked field in discovery order (P0 first).
var Registry = []FieldDescriptor{
	{FieldRevenue, "Annual revenue", KindNumeric, P0, CategoryFinancial, true},
	{FieldFundingTotal, "Total funding raised", KindNumeric, P0, CategoryFinancial, true},
	{FieldEmployeeCount, "Employee count", KindNumeric, P0, CategoryWorkforce, true},
	{FieldCEO, "Chief executive officer", KindString, P0, CategoryLeadership, true},
	{FieldPricingModel, "Pricing model", KindEnum, P0, CategoryPricing, true},
	{FieldBasePrice, "Entry-level price", KindNumeric, P0, CategoryPricing, true},
	{FieldCustomerCount, "Customer count", KindNumeric, P0, CategoryMarket, true},
	{FieldValuation, "Latest valuation", KindNumeric, P1, CategoryFinancial, false},
	{FieldFoundedYear, "Year founded", KindDate, P1, CategoryGeneral, true},
	{FieldHeadquarters, "Headquarters location", KindString, P1, CategoryGeneral, true},
	{FieldTargetMarket, "Target market", KindString, P1, CategoryMarket, false},
	{FieldKeyCustomers, "Key customers", KindString, P1, CategoryMarket, false},
	{FieldProductLines, "Product lines", KindString, P1, CategoryProduct, false},
	{FieldG2Rating, "G2 rating", KindNumeric, P2, CategoryReviews, true},
	{FieldGlassdoorRating, "Glassdoor rating", KindNumeric, P2, CategoryReviews, false},
	{FieldLinkedInFollowers, "LinkedIn followers", KindNumeric, P2, CategoryWorkforce, false},
	{FieldTechStack, "Technology stack", KindString, P2, CategoryProduct, false},
	{FieldPartnerships, "Partnerships", KindString, P2, CategoryMarket, false},
	{FieldDescription, "Company description", KindString, P3, CategoryGeneral, false},
	{FieldTagline, "Tagline", KindString, P3, CategoryGeneral, false},
	{FieldWebsite, "Website", KindString, P3, CategoryGeneral, false},
	{FieldSocialPresence, "Social presence", KindString, P3, CategoryGeneral, false},
}

var registryByName = func() map[Field]FieldDescriptor {
	m := make(map[Field]FieldDescriptor, len(Registry))
	for _, d := range Registry {
		m[d.Name] = d
	}
	return m
}()

// Lookup returns the descriptor for a field name.
func Lookup(name string) (FieldDescriptor, bool) {
	d, ok := registryByName[Field(name)]
	return d, ok
}

// Fields returns registry fields in discovery order, optionally restricted
// to one priority tier.
func Fields(tier *PriorityTier) []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(Registry))
	for _, d := range Registry {
		if tier != nil && d.Tier != *tier {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Critical returns the battlecard-critical subset in registry order.
func Critical() []FieldDescriptor {
	var out []FieldDescriptor
	for _, d := range Registry {
		if d.Critical {
			out = append(out, d)
		}
	}
	return out
}
