package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceRecord_Validate(t *testing.T) {
	tests := []struct {
		name     string
		resource ResourceRecord
		wantErr  bool
	}{
		{
			name: "valid resource",
			resource: ResourceRecord{
				ARN:          "arn:aws:s3:::logs-bucket",
				ResourceType: "s3:bucket",
				AccountID:    "123456789012",
			},
			wantErr: false,
		},
		{
			name:     "missing ARN",
			resource: ResourceRecord{AccountID: "123456789012"},
			wantErr:  true,
		},
		{
			name:     "malformed ARN",
			resource: ResourceRecord{ARN: "bucket/logs", AccountID: "123456789012"},
			wantErr:  true,
		},
		{
			name:     "missing account",
			resource: ResourceRecord{ARN: "arn:aws:s3:::logs-bucket"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resource.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResourceRecord_GetTag(t *testing.T) {
	r := ResourceRecord{Tags: map[string]string{"owner": "alice", "blank": "  "}}

	v, ok := r.GetTag("owner")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = r.GetTag("blank")
	assert.False(t, ok, "whitespace values count as missing")

	_, ok = r.GetTag("absent")
	assert.False(t, ok)
	assert.True(t, r.HasTags())

	empty := ResourceRecord{Tags: map[string]string{"x": ""}}
	assert.False(t, empty.HasTags())
}

func TestResourceRecord_CloneIsDeep(t *testing.T) {
	orig := ResourceRecord{
		ARN:     "arn:aws:ec2:us-east-1:123456789012:instance/i-1",
		Tags:    map[string]string{"a": "1"},
		Markers: map[string]string{"m": "x"},
	}
	c := orig.Clone()
	c.Tags["a"] = "2"
	c.Markers["m"] = "y"

	assert.Equal(t, "1", orig.Tags["a"])
	assert.Equal(t, "x", orig.Markers["m"])
}

func TestTagField_Key(t *testing.T) {
	assert.Equal(t, "unsw:technical-owner", TagTechnicalOwner.Key("unsw"))
	assert.Equal(t, "environment", TagEnvironment.Key(""))
}

func TestAccountTagProfile_Value(t *testing.T) {
	var nilProfile *AccountTagProfile
	_, ok := nilProfile.Value(TagTechnicalOwner)
	assert.False(t, ok)

	p := &AccountTagProfile{AccountID: "123456789012"}
	p.SetValue(TagBillingProject, "PRJ-1")

	v, ok := p.Value(TagBillingProject)
	assert.True(t, ok)
	assert.Equal(t, "PRJ-1", v)

	_, ok = p.Value(TagEnvironment)
	assert.False(t, ok)
}

func TestNormalizeStatus(t *testing.T) {
	for _, raw := range []string{"NonCompliant", "non-compliant", "VIOLATION", "failed"} {
		assert.Equal(t, StatusNonCompliant, NormalizeStatus(raw), raw)
	}
	for _, raw := range []string{"Compliant", " compliant ", "Suppressed"} {
		assert.Equal(t, StatusCompliant, NormalizeStatus(raw), raw)
	}
	for _, raw := range []string{"CouldNotAssess", "RequiresManualAssessment", "could_not_assess", "", "Pending"} {
		assert.Equal(t, StatusCouldNotAssess, NormalizeStatus(raw), raw)
	}

	f := ComplianceFinding{Status: NormalizeStatus("RequiresManualAssessment")}
	assert.False(t, f.IsAssessed())
	assert.False(t, f.IsNonCompliant())
}

func TestNewTruncationState(t *testing.T) {
	st := NewTruncationState("ec2:instance", 5000, 8542)
	assert.True(t, st.IsTruncated)

	st = NewTruncationState("ec2:instance", 5000, 5000)
	assert.False(t, st.IsTruncated)
}

func TestAccount_Validate(t *testing.T) {
	assert.NoError(t, Account{ID: "123456789012", Provider: ProviderAWS}.Validate())
	assert.Error(t, Account{ID: "12345", Provider: ProviderAWS}.Validate())
	assert.Error(t, Account{Provider: ProviderAWS}.Validate())

	accounts := []Account{{ID: "1", Enabled: true}, {ID: "2"}, {ID: "3", Enabled: true}}
	enabled := FilterEnabled(accounts)
	assert.Len(t, enabled, 2)
	assert.Equal(t, "3", enabled[1].ID)
}
