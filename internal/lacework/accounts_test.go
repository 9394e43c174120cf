package lacework

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lwcomply/pkg/types"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(types.DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestParseCloudAccounts(t *testing.T) {
	body := `{"data": [
	  {"intgGuid": "G1", "name": "prod", "type": "AwsCfg", "enabled": 1, "data": {"awsAccountId": "111111111111"}},
	  {"intgGuid": "G2", "name": "ct", "type": "AwsCtSqs", "enabled": 1, "data": {"awsAccountId": "111111111111"}},
	  {"intgGuid": "G3", "name": "dev", "type": "AwsCfg", "enabled": 0, "data": {"awsAccountId": "222222222222"}},
	  {"intgGuid": "G4", "name": "dev-again", "type": "AwsCfg", "enabled": 1, "data": {"awsAccountId": "222222222222"}},
	  {"intgGuid": "G5", "name": "org", "type": "AwsCfg", "enabled": 1, "data": {}}
	]}`

	accounts, err := ParseCloudAccounts([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []types.Account{
		{ID: "111111111111", Provider: types.ProviderAWS, Enabled: true, Alias: "prod", IntegrationGUID: "G1"},
		{ID: "222222222222", Provider: types.ProviderAWS, Enabled: true, Alias: "dev", IntegrationGUID: "G3"},
	}, accounts)
}

func TestParseCloudAccounts_BareList(t *testing.T) {
	accounts, err := ParseCloudAccounts([]byte(`[{"enabled": 0, "data": {"awsAccountId": "333333333333"}}]`))
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.False(t, accounts[0].Enabled)

	_, err = ParseCloudAccounts([]byte(`{"data": {"oops": true}}`))
	assert.Error(t, err)
}
