package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/pkg/notion"
)

// DefaultNotionProperties maps registry fields to the competitor database's
// property names.
var DefaultNotionProperties = map[string]string{
	string(model.FieldRevenue):       "Revenue",
	string(model.FieldFundingTotal):  "Total Funding",
	string(model.FieldEmployeeCount): "Employees",
	string(model.FieldCEO):           "CEO",
	string(model.FieldPricingModel):  "Pricing Model",
	string(model.FieldBasePrice):     "Base Price",
	string(model.FieldCustomerCount): "Customers",
	string(model.FieldHeadquarters):  "HQ",
	string(model.FieldFoundedYear):   "Founded",
	string(model.FieldTargetMarket):  "Target Market",
	string(model.FieldWebsite):       "Website",
	string(model.FieldG2Rating):      "G2 Rating",
}

// NotionProvider reads analyst-maintained values from a Notion database.
type NotionProvider struct {
	client     notion.Client
	dbID       string
	titleProp  string
	sourceProp string
	asOfProp   string
	properties map[string]string
}

// NewNotionProvider reads competitor pages from database dbID.
func NewNotionProvider(client notion.Client, dbID string) *NotionProvider {
	return &NotionProvider{
		client:     client,
		dbID:       dbID,
		titleProp:  "Name",
		sourceProp: "Source",
		asOfProp:   "Last Verified",
		properties: DefaultNotionProperties,
	}
}

func (n *NotionProvider) Name() string                 { return "notion" }
func (n *NotionProvider) SourceType() model.SourceType { return model.SourceManualVerified }

// QueryEntity finds the page titled name. The page's Source property, when
// set, is cited for every field it supplies.
func (n *NotionProvider) QueryEntity(ctx context.Context, name string) (*Result, error) {
	page, err := notion.FindByTitle(ctx, n.client, n.dbID, n.titleProp, name)
	if err != nil {
		return nil, eris.Wrap(err, "provider: notion lookup")
	}
	if page == nil {
		return nil, nil
	}

	source := notion.Text(*page, n.sourceProp)
	res := &Result{
		Fields:     make(map[string]string),
		SourceURLs: make(map[string]string),
	}
	for field, prop := range n.properties {
		v := notion.Text(*page, prop)
		if v == "" {
			continue
		}
		res.Fields[field] = v
		if source != "" {
			res.SourceURLs[field] = source
		}
	}
	if asOf := notion.Text(*page, n.asOfProp); asOf != "" {
		if t, err := time.Parse("2006-01-02", asOf); err == nil {
			res.DataAsOf = &t
		}
	}
	return res, nil
}
