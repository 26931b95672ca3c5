package provider

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/competitor-intel/internal/model"
	"github.com/sells-group/competitor-intel/pkg/salesforce"
)

// SalesforceProvider reads competitor Account records from the CRM.
type SalesforceProvider struct {
	client salesforce.Client
}

// NewSalesforceProvider wraps a Salesforce client.
func NewSalesforceProvider(client salesforce.Client) *SalesforceProvider {
	return &SalesforceProvider{client: client}
}

func (s *SalesforceProvider) Name() string                 { return "salesforce" }
func (s *SalesforceProvider) SourceType() model.SourceType { return model.SourceClientProvided }

// QueryEntity maps the competitor Account named name onto registry fields.
func (s *SalesforceProvider) QueryEntity(ctx context.Context, name string) (*Result, error) {
	acct, err := salesforce.FindCompetitorAccount(ctx, s.client, name)
	if err != nil {
		return nil, eris.Wrap(err, "provider: salesforce lookup")
	}
	if acct == nil {
		return nil, nil
	}

	fields := map[string]string{
		string(model.FieldHeadquarters): acct.Headquarters(),
		string(model.FieldDescription):  acct.Description,
		string(model.FieldWebsite):      acct.Website,
		string(model.FieldTargetMarket): acct.Industry,
	}
	if acct.NumberOfEmployees > 0 {
		fields[string(model.FieldEmployeeCount)] = strconv.Itoa(acct.NumberOfEmployees)
	}
	if acct.AnnualRevenue > 0 {
		fields[string(model.FieldRevenue)] = strconv.FormatFloat(acct.AnnualRevenue, 'f', 0, 64)
	}
	for k, v := range fields {
		if v == "" {
			delete(fields, k)
		}
	}
	return &Result{Fields: fields}, nil
}
