package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ReportKind selects one of the atlas report layers. The zero value means
// the caller did not pick one.
type ReportKind int

const (
	PastureArea ReportKind = iota + 1
	DegradationClasses
	LivestockCapacity
	IntensificationPotential
)

type reportInfo struct {
	name    string
	file    string
	aliases []string
}

// reports is indexed by ReportKind; index 0 is the unset kind.
var reports = [...]reportInfo{
	PastureArea:              {name: "pasture_area", file: "pasture", aliases: []string{"areaDePastagem"}},
	DegradationClasses:       {name: "degradation_classes", file: "classes_degradacao_pastagem", aliases: []string{"pastagemDegradada"}},
	LivestockCapacity:        {name: "livestock_capacity", file: "lotacao_bovina_regions", aliases: []string{"rebanhoBovinoUA"}},
	IntensificationPotential: {name: "intensification_potential", file: "potencial_intensificacao_pecuaria", aliases: []string{"potencialDeIntensificacaoPecuaria"}},
}

// ReportKinds lists every supported kind in declaration order.
func ReportKinds() []ReportKind {
	return []ReportKind{PastureArea, DegradationClasses, LivestockCapacity, IntensificationPotential}
}

// Valid reports whether k is one of the declared kinds.
func (k ReportKind) Valid() bool {
	return k > 0 && int(k) < len(reports)
}

// File returns the provider-side file identifier, or "" for an invalid kind.
func (k ReportKind) File() string {
	if !k.Valid() {
		return ""
	}
	return reports[k].file
}

func (k ReportKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("ReportKind(%d)", int(k))
	}
	return reports[k].name
}

// MarshalText encodes the kind by its snake_case name.
func (k ReportKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid report kind %d", int(k))
	}
	return []byte(reports[k].name), nil
}

// UnmarshalText accepts anything ParseReportKind does.
func (k *ReportKind) UnmarshalText(b []byte) error {
	parsed, err := ParseReportKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseReportKind resolves a snake_case name, a provider file identifier, or
// one of the legacy Portuguese aliases (e.g. "areaDePastagem").
func ParseReportKind(s string) (ReportKind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "report", Reason: "report kind is required"}
	}
	for _, k := range ReportKinds() {
		info := reports[k]
		if strings.EqualFold(s, info.name) || s == info.file {
			return k, nil
		}
		for _, a := range info.aliases {
			if strings.EqualFold(s, a) {
				return k, nil
			}
		}
	}
	return 0, &ValidationError{Field: "report", Reason: fmt.Sprintf("unknown report kind %q", s)}
}

// SearchRequest describes one report query. Kind is required; Year and
// MunicipalityCode are optional filters.
type SearchRequest struct {
	Kind             ReportKind `json:"report"`
	Year             *int       `json:"year,omitempty"`
	MunicipalityCode *int       `json:"municipality_code,omitempty"`
}

// Int returns a pointer to v, for populating optional SearchRequest fields.
func Int(v int) *int {
	return &v
}

// ParseSearchRequest builds a request from textual inputs such as query
// parameters or flags. Empty year or municipality leaves the field unset.
func ParseSearchRequest(kind, year, municipality string) (SearchRequest, error) {
	k, err := ParseReportKind(kind)
	if err != nil {
		return SearchRequest{}, err
	}
	req := SearchRequest{Kind: k}
	if req.Year, err = parseOptionalInt("year", year); err != nil {
		return SearchRequest{}, err
	}
	if req.MunicipalityCode, err = parseOptionalInt("municipality_code", municipality); err != nil {
		return SearchRequest{}, err
	}
	return req, nil
}

func parseOptionalInt(field, s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("%s must be a positive integer, got %q", field, s)}
	}
	return &n, nil
}

// Validate checks the required fields of the request.
func (r SearchRequest) Validate() error {
	if r.Kind == 0 {
		return &ValidationError{Field: "report", Reason: "report kind is required"}
	}
	if !r.Kind.Valid() {
		return &ValidationError{Field: "report", Reason: fmt.Sprintf("unknown report kind %d", int(r.Kind))}
	}
	return nil
}

// EndpointParameters is the provider query derived from a SearchRequest.
// Region is nil when the parameter must not be sent.
type EndpointParameters struct {
	File   string  `json:"file"`
	Filter string  `json:"filter"`
	Region *string `json:"region,omitempty"`
}

// Values encodes the parameters as a query string. filter is always sent,
// even when empty.
func (p EndpointParameters) Values() url.Values {
	v := url.Values{
		"file":   {p.File},
		"filter": {p.Filter},
	}
	if p.Region != nil {
		v.Set("region", *p.Region)
	}
	return v
}

// BuildParameters maps a request onto the provider's file/filter/region
// parameters. It is a pure function of the request.
func BuildParameters(r SearchRequest) (EndpointParameters, error) {
	if err := r.Validate(); err != nil {
		return EndpointParameters{}, err
	}

	params := EndpointParameters{File: r.Kind.File()}

	var municipality string
	if r.MunicipalityCode != nil {
		municipality = municipalityPredicate(*r.MunicipalityCode)
	}

	switch r.Kind {
	case DegradationClasses, IntensificationPotential:
		params.Filter = municipality
		return params, nil
	default:
		// pasture, lotacao_bovina_regions
		var preds []string
		if r.Year != nil {
			preds = append(preds, "year="+strconv.Itoa(*r.Year))
		}
		if municipality != "" {
			preds = append(preds, municipality)
			params.Filter = municipality
		}
		if len(preds) > 0 {
			region := strings.Join(preds, " AND ")
			params.Region = &region
		}
		return params, nil
	}
}

func municipalityPredicate(code int) string {
	return "cd_geocmu='" + strconv.Itoa(code) + "'"
}

// DegradationClass is the pasture degradation level reported by the
// degradation layer.
type DegradationClass int

const (
	NotDegraded DegradationClass = iota + 1
	LightDegradation
	ModerateDegradation
	SevereDegradation
)

func (c DegradationClass) String() string {
	switch c {
	case NotDegraded:
		return "Not Degraded"
	case LightDegradation:
		return "Light"
	case ModerateDegradation:
		return "Moderate"
	case SevereDegradation:
		return "Severe"
	default:
		return fmt.Sprintf("DegradationClass(%d)", int(c))
	}
}
