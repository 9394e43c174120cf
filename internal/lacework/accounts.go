package lacework

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yairfalse/lwcomply/pkg/types"
)

const (
	cloudAccountsPath = "/api/v2/CloudAccounts"
	awsConfigType     = "AwsCfg"
)

type rawCloudAccount struct {
	IntgGUID string `json:"intgGuid"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Enabled  int    `json:"enabled"`
	Data     struct {
		AWSAccountID string `json:"awsAccountId"`
	} `json:"data"`
}

// ListAccounts returns the AWS accounts integrated through config
// integrations. Disabled integrations are included with Enabled unset.
func (c *APIClient) ListAccounts(ctx context.Context) ([]types.Account, error) {
	body, err := c.get(ctx, "cloud accounts", cloudAccountsPath+"/"+awsConfigType, nil)
	if err != nil {
		return nil, err
	}
	return ParseCloudAccounts(body)
}

// ParseCloudAccounts extracts AWS accounts from a cloud-account listing.
// An account integrated more than once is reported once, enabled if any
// of its integrations is.
func ParseCloudAccounts(body []byte) ([]types.Account, error) {
	var raw []rawCloudAccount
	if err := json.Unmarshal(unwrapData(body), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode cloud accounts: %w", err)
	}

	index := make(map[string]int)
	var accounts []types.Account
	for _, ca := range raw {
		if ca.Type != "" && ca.Type != awsConfigType {
			continue
		}
		id := ca.Data.AWSAccountID
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			accounts[i].Enabled = accounts[i].Enabled || ca.Enabled == 1
			continue
		}
		index[id] = len(accounts)
		accounts = append(accounts, types.Account{
			ID:              id,
			Provider:        types.ProviderAWS,
			Enabled:         ca.Enabled == 1,
			Alias:           ca.Name,
			IntegrationGUID: ca.IntgGUID,
		})
	}
	return accounts, nil
}
