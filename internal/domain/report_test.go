package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMunicipalityFilter = "cd_geocmu='3302025'"

func strPtr(s string) *string { return &s }

func TestBuildParameters(t *testing.T) {
	tests := []struct {
		name     string
		req      SearchRequest
		expected EndpointParameters
	}{
		{
			name:     "degradation with municipality",
			req:      SearchRequest{Kind: DegradationClasses, MunicipalityCode: Int(3302025)},
			expected: EndpointParameters{File: "classes_degradacao_pastagem", Filter: testMunicipalityFilter},
		},
		{
			name:     "degradation without municipality",
			req:      SearchRequest{Kind: DegradationClasses, Year: Int(2019)},
			expected: EndpointParameters{File: "classes_degradacao_pastagem"},
		},
		{
			name:     "intensification with municipality",
			req:      SearchRequest{Kind: IntensificationPotential, MunicipalityCode: Int(3302025)},
			expected: EndpointParameters{File: "potencial_intensificacao_pecuaria", Filter: testMunicipalityFilter},
		},
		{
			name:     "intensification without filters",
			req:      SearchRequest{Kind: IntensificationPotential},
			expected: EndpointParameters{File: "potencial_intensificacao_pecuaria"},
		},
		{
			name:     "pasture with year",
			req:      SearchRequest{Kind: PastureArea, Year: Int(2019)},
			expected: EndpointParameters{File: "pasture", Region: strPtr("year=2019")},
		},
		{
			name: "pasture with year and municipality",
			req:  SearchRequest{Kind: PastureArea, Year: Int(2019), MunicipalityCode: Int(3302025)},
			expected: EndpointParameters{
				File:   "pasture",
				Filter: testMunicipalityFilter,
				Region: strPtr("year=2019 AND " + testMunicipalityFilter),
			},
		},
		{
			name: "livestock with year and municipality",
			req:  SearchRequest{Kind: LivestockCapacity, Year: Int(2018), MunicipalityCode: Int(5208707)},
			expected: EndpointParameters{
				File:   "lotacao_bovina_regions",
				Filter: "cd_geocmu='5208707'",
				Region: strPtr("year=2018 AND cd_geocmu='5208707'"),
			},
		},
		{
			name:     "pasture with municipality only",
			req:      SearchRequest{Kind: PastureArea, MunicipalityCode: Int(3302025)},
			expected: EndpointParameters{File: "pasture", Filter: testMunicipalityFilter, Region: strPtr(testMunicipalityFilter)},
		},
		{
			name:     "pasture without filters",
			req:      SearchRequest{Kind: PastureArea},
			expected: EndpointParameters{File: "pasture"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildParameters(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildParameters_Deterministic(t *testing.T) {
	req := SearchRequest{Kind: PastureArea, Year: Int(2019), MunicipalityCode: Int(3302025)}

	first, err := BuildParameters(req)
	require.NoError(t, err)
	for range 10 {
		again, err := BuildParameters(req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBuildParameters_Validation(t *testing.T) {
	t.Run("missing kind", func(t *testing.T) {
		_, err := BuildParameters(SearchRequest{Year: Int(2019)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Equal(t, "report kind is required", err.Error())
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := BuildParameters(SearchRequest{Kind: ReportKind(42)})
		require.Error(t, err)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "report", verr.Field)
		assert.Contains(t, verr.Reason, "unknown report kind")
	})
}

func TestEndpointParameters_Values(t *testing.T) {
	t.Run("region omitted", func(t *testing.T) {
		v := EndpointParameters{File: "classes_degradacao_pastagem"}.Values()
		assert.Equal(t, "classes_degradacao_pastagem", v.Get("file"))
		assert.True(t, v.Has("filter"))
		assert.Equal(t, "", v.Get("filter"))
		assert.False(t, v.Has("region"))
	})

	t.Run("region present", func(t *testing.T) {
		v := EndpointParameters{File: "pasture", Region: strPtr("year=2019")}.Values()
		assert.Equal(t, "year=2019", v.Get("region"))
		assert.Equal(t, "file=pasture&filter=&region=year%3D2019", v.Encode())
	})
}

func TestParseReportKind(t *testing.T) {
	tests := []struct {
		input    string
		expected ReportKind
	}{
		{"pasture_area", PastureArea},
		{"PASTURE_AREA", PastureArea},
		{"pasture", PastureArea},
		{"areaDePastagem", PastureArea},
		{"degradation_classes", DegradationClasses},
		{"pastagemDegradada", DegradationClasses},
		{"lotacao_bovina_regions", LivestockCapacity},
		{"rebanhoBovinoUA", LivestockCapacity},
		{" intensification_potential ", IntensificationPotential},
		{"potencialDeIntensificacaoPecuaria", IntensificationPotential},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseReportKind(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, err := ParseReportKind("")
		require.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, "report kind is required", err.Error())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseReportKind("soy_yield")
		require.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "soy_yield")
	})
}

func TestReportKind_TextRoundTrip(t *testing.T) {
	req := SearchRequest{Kind: LivestockCapacity, Year: Int(2020)}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"report":"livestock_capacity","year":2020}`, string(data))

	var decoded SearchRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)
}

func TestReportKind_Invalid(t *testing.T) {
	var k ReportKind
	assert.False(t, k.Valid())
	assert.Empty(t, k.File())
	assert.Equal(t, "ReportKind(0)", k.String())

	_, err := k.MarshalText()
	assert.Error(t, err)
}

func TestDegradationClass_String(t *testing.T) {
	assert.Equal(t, "Not Degraded", NotDegraded.String())
	assert.Equal(t, "Light", LightDegradation.String())
	assert.Equal(t, "Moderate", ModerateDegradation.String())
	assert.Equal(t, "Severe", SevereDegradation.String())
	assert.Equal(t, "DegradationClass(9)", DegradationClass(9).String())
}
