package lacework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lwcomply/pkg/types"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`{"data": {"policyId": "lacework-global-45", "title": "Public buckets", "severity": "high",
	  "enabled": true, "policyType": "Violation", "remediation": "Block public access"}}`), "lacework-global-45")
	require.NoError(t, err)
	assert.Equal(t, "Public buckets", p.Title)
	assert.Equal(t, "high", p.Severity)
	assert.True(t, p.Enabled)
	assert.Equal(t, "Block public access", p.Remediation)

	p, err = ParsePolicy([]byte(`[{"title": "From CLI", "severity": 3}]`), "custom-1")
	require.NoError(t, err)
	assert.Equal(t, "custom-1", p.ID)
	assert.Equal(t, "Medium", p.Severity)

	_, err = ParsePolicy([]byte(`{"data": []}`), "missing")
	assert.Error(t, err)
}

func TestParseReportDefinitions(t *testing.T) {
	body := `{"data": [
	  {"reportDefinitionGuid": "A", "reportName": "AWS CIS Benchmark and S3 Report ",
	   "reportDefinition": {"sections": [{"policies": ["p1", "p2"]}, {"policies": ["p2", "p3"]}]}},
	  {"reportDefinitionGuid": "B", "reportName": "Custom", "sections": [{"policies": [{"policyId": "c1"}]}]},
	  {"reportDefinitionGuid": "C", "reportName": "Flat", "policies": [{"policyId": "f1"}, "f2"]}
	]}`

	defs, err := ParseReportDefinitions([]byte(body))
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, defs[0].PolicyIDs)
	assert.Equal(t, []string{"c1"}, defs[1].PolicyIDs)
	assert.Equal(t, []string{"f1", "f2"}, defs[2].PolicyIDs)

	def, ok := types.FindReportDefinition(defs, " AWS CIS Benchmark and S3 Report")
	require.True(t, ok)
	assert.Equal(t, "A", def.GUID)

	_, ok = types.FindReportDefinition(defs, "Nope")
	assert.False(t, ok)
}
