// Package openfda provides the HTTP client for the openFDA drug label
// endpoint used by medication safety checks.
package openfda

// LabelResponse is the body of a drug/label.json search.
type LabelResponse struct {
	Meta    *Meta   `json:"meta,omitempty"`
	Results []Label `json:"results"`
}

// Meta carries result paging information.
type Meta struct {
	Results struct {
		Skip  int `json:"skip"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"results"`
}

// Label is the subset of a structured product label the client reads. Every
// section is an array of strings; the *_table variants hold HTML tables.
type Label struct {
	ID                  string   `json:"id,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`
	WarningsTable       []string `json:"warnings_table,omitempty"`
	WarningsAndCautions []string `json:"warnings_and_cautions,omitempty"`
	BoxedWarning        []string `json:"boxed_warning,omitempty"`
	BoxedWarningTable   []string `json:"boxed_warning_table,omitempty"`
	OpenFDA             OpenFDA  `json:"openfda"`
}

// OpenFDA holds the harmonized identifiers of a label.
type OpenFDA struct {
	GenericName []string `json:"generic_name,omitempty"`
	BrandName   []string `json:"brand_name,omitempty"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError contains error details.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
