package openfda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/nurseiq/internal/domain"
)

// Collaborator is the name used in CollaboratorError values from this client.
const Collaborator = "openfda"

const (
	// DefaultBaseURL is the public drug label endpoint.
	DefaultBaseURL = "https://api.fda.gov/drug/label.json"

	defaultTimeout = 5 * time.Second

	fieldGenericName = "openfda.generic_name"
	fieldBrandName   = "openfda.brand_name"
)

// Config configures the client.
type Config struct {
	BaseURL string
	// APIKey is optional; it raises the per-key rate limit.
	APIKey string
	// Timeout bounds each lookup, including the body read.
	Timeout time.Duration
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client searches openFDA drug labels.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.LabelSource = (*Client)(nil)

// NewClient creates a new client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchGeneric finds the first label whose generic name matches name.
func (c *Client) SearchGeneric(ctx context.Context, name string) (*domain.DrugLabel, error) {
	return c.search(ctx, fieldGenericName, name)
}

// SearchBrand finds the first label whose brand name matches name.
func (c *Client) SearchBrand(ctx context.Context, name string) (*domain.DrugLabel, error) {
	return c.search(ctx, fieldBrandName, name)
}

func (c *Client) searchURL(field, name string) string {
	q := url.Values{}
	q.Set("search", fmt.Sprintf("%s:%q", field, name))
	q.Set("limit", "1")
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	return c.cfg.BaseURL + "?" + q.Encode()
}

func (c *Client) search(ctx context.Context, field, name string) (*domain.DrugLabel, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(field, name), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeServer,
				fmt.Sprintf("lookup of %s timed out after %s", name, c.cfg.Timeout))
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := http.StatusText(resp.StatusCode)
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
			message = errResp.Error.Message
		}
		return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeForStatus(resp.StatusCode), message).
			WithStatusCode(resp.StatusCode)
	}

	var result LabelResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeMalformedReply,
			fmt.Sprintf("failed to unmarshal response: %v", err))
	}

	if len(result.Results) == 0 {
		return nil, domain.NewCollaboratorError(Collaborator, domain.ErrorTypeNotFound,
			fmt.Sprintf("no label for %s", name))
	}

	return toDrugLabel(&result.Results[0]), nil
}

func toDrugLabel(l *Label) *domain.DrugLabel {
	label := &domain.DrugLabel{
		GenericName:  first(l.OpenFDA.GenericName),
		BrandName:    first(l.OpenFDA.BrandName),
		Warnings:     first(l.Warnings),
		BoxedWarning: first(l.BoxedWarning),
	}

	if label.Warnings == "" {
		label.Warnings = first(l.WarningsAndCautions)
	}
	if label.Warnings == "" && len(l.WarningsTable) > 0 {
		label.Warnings = flattenTable(l.WarningsTable[0])
	}
	if label.BoxedWarning == "" && len(l.BoxedWarningTable) > 0 {
		label.BoxedWarning = flattenTable(l.BoxedWarningTable[0])
	}

	return label
}

// flattenTable renders a label HTML table as text: cells joined by " | ",
// rows by "; ". Markup that is not a table is reduced to its text.
func flattenTable(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var rows []string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			if text := collapseSpace(cell.Text()); text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			rows = append(rows, strings.Join(cells, " | "))
		}
	})

	if len(rows) == 0 {
		return collapseSpace(doc.Text())
	}
	return strings.Join(rows, "; ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
