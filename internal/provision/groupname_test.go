package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dpm/internal/domain"
)

func TestGroupName(t *testing.T) {
	tests := []struct {
		name string
		row  domain.Row
		want string
	}{
		{
			name: "production environment",
			row:  domain.Row{"env": "Production", "bu": "Finance", "domain": "Sales", "appName": "CoPilot", "role": "admins"},
			want: "prod_TMFinance_Sales_CoPilot_admins",
		},
		{
			name: "others with override and blank domain",
			row:  domain.Row{"env": "dev", "bu": "Others", "other_type": "X", "domain": "", "appName": "App1", "role": "readers"},
			want: "nprod_TMX_App1_readers",
		},
		{
			name: "prd alias",
			row:  domain.Row{"env": "prd", "bu": "CV", "domain": "Sales", "appName": "SCV", "role": "contributors"},
			want: "prod_TMCV_Sales_SCV_contributors",
		},
		{
			name: "single letter production alias",
			row:  domain.Row{"env": "P", "bu": "CV", "appName": "SCV", "role": "readers"},
			want: "prod_TMCV_SCV_readers",
		},
		{
			name: "unknown environment is nonprod",
			row:  domain.Row{"env": "staging", "bu": "CV", "appName": "SCV", "role": "readers"},
			want: "nprod_TMCV_SCV_readers",
		},
		{
			name: "all optional parts blank",
			row:  domain.Row{"env": "dev"},
			want: "nprod",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GroupName(tt.row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGroupNameOthersRequiresOverride(t *testing.T) {
	_, err := GroupName(domain.Row{"env": "dev", "bu": "Others", "appName": "App1"})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestGroupNameDeterministic(t *testing.T) {
	row := domain.Row{"env": "prod", "bu": "Finance", "domain": "Sales", "appName": "CoPilot", "role": "admins"}
	first, err := GroupName(row)
	require.NoError(t, err)
	second, err := GroupName(row)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitMembers(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"A@Example.com, b@example.com", []string{"a@example.com", "b@example.com"}},
		{"a@example.com;b@example.com; ", []string{"a@example.com", "b@example.com"}},
		{"  A@Example.COM  ", []string{"a@example.com"}},
		{"a@example.com,,b@example.com", []string{"a@example.com", "b@example.com"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitMembers(tt.raw), "input %q", tt.raw)
	}
}
