package zaken

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

	"github.com/vngrid/caseguard/pkg/metrics"
)

// ClientConfig configures the HTTP client for the case registry.
type ClientConfig struct {
	// BaseURL of the registry API, used for role and case-type listings.
	// Object URLs themselves are absolute and fetched as-is.
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements Resolver against a ZGW-style case registry API.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient constructs a registry client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("zaken: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type caseResponse struct {
	URL             string `json:"url"`
	CaseType        string `json:"case_type"`
	Confidentiality string `json:"confidentiality"`
}

type caseTypeResponse struct {
	URL        string `json:"url"`
	Identifier string `json:"identifier"`
	Catalog    string `json:"catalog"`
}

type roleResponse struct {
	OrgUnit string `json:"org_unit"`
}

type paginated[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// ResolveObject fetches the case, its type, and its organizational-unit role
// assignments from the registry.
func (c *Client) ResolveObject(ctx context.Context, objectURL string) (*ObjectMeta, error) {
	var zaak caseResponse
	if err := c.getJSON(ctx, objectURL, &zaak); err != nil {
		c.countLookup(err)
		return nil, err
	}

	var caseType caseTypeResponse
	if err := c.getJSON(ctx, zaak.CaseType, &caseType); err != nil {
		c.countLookup(err)
		return nil, err
	}

	orgUnits, err := c.caseOrgUnits(ctx, objectURL)
	if err != nil {
		c.countLookup(err)
		return nil, err
	}

	metrics.ResolverLookups.WithLabelValues("upstream", "ok").Inc()
	return &ObjectMeta{
		URL:             zaak.URL,
		TypeURL:         caseType.URL,
		TypeIdentifier:  caseType.Identifier,
		Catalog:         caseType.Catalog,
		Confidentiality: zaak.Confidentiality,
		OrgUnits:        orgUnits,
	}, nil
}

// CaseTypes lists the case types of a catalog, following pagination.
func (c *Client) CaseTypes(ctx context.Context, catalog string) ([]CaseType, error) {
	next := fmt.Sprintf("%s/casetypes?catalog=%s", c.cfg.BaseURL, url.QueryEscape(catalog))

	var out []CaseType
	for next != "" {
		var page paginated[caseTypeResponse]
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, ct := range page.Results {
			out = append(out, CaseType{URL: ct.URL, Identifier: ct.Identifier, Catalog: ct.Catalog})
		}
		next = page.Next
	}
	return out, nil
}

func (c *Client) caseOrgUnits(ctx context.Context, objectURL string) ([]string, error) {
	next := fmt.Sprintf("%s/roles?case=%s", c.cfg.BaseURL, url.QueryEscape(objectURL))

	seen := make(map[string]struct{})
	var out []string
	for next != "" {
		var page paginated[roleResponse]
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for _, role := range page.Results {
			slug := strings.TrimSpace(role.OrgUnit)
			if slug == "" {
				continue
			}
			if _, exists := seen[slug]; exists {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
		next = page.Next
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("zaken: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("zaken: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrObjectNotFound, rawURL)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("zaken: fetch %s: unexpected status %d: %s", rawURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("zaken: decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) countLookup(err error) {
	if errors.Is(err, ErrObjectNotFound) {
		metrics.ResolverLookups.WithLabelValues("upstream", "not_found").Inc()
		return
	}
	metrics.ResolverLookups.WithLabelValues("upstream", "error").Inc()
}
