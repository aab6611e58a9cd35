package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/woundcare-opportunities/internal/emr"
)

// Client implements emr.ClinicalDataProvider and emr.CoverageProvider against a FHIR R4 server.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	// OAuth 2.0 token management
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var (
	_ emr.ClinicalDataProvider = (*Client)(nil)
	_ emr.CoverageProvider     = (*Client)(nil)
)

// Config holds configuration for the FHIR client
type Config struct {
	BaseURL      string
	ClientID     string // OAuth 2.0 client ID; empty disables authentication
	ClientSecret string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// New creates a new FHIR client
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("fhir: BaseURL is required")
	}
	if cfg.ClientID != "" && cfg.ClientSecret == "" {
		return nil, fmt.Errorf("fhir: ClientSecret is required when ClientID is set")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
	}, nil
}

// GetPatient retrieves demographics
// FHIR: GET /Patient/{id}
func (c *Client) GetPatient(ctx context.Context, patientID string) (*emr.Patient, error) {
	var patient Patient
	if err := c.get(ctx, "/Patient/"+url.PathEscape(patientID), nil, &patient); err != nil {
		return nil, err
	}
	return parsePatient(patient), nil
}

// ListConditions retrieves the problem list
// FHIR: GET /Condition?patient={id}
func (c *Client) ListConditions(ctx context.Context, patientID string) ([]emr.Condition, error) {
	resources, err := search[Condition](ctx, c, "Condition", url.Values{"patient": {patientID}})
	if err != nil {
		return nil, err
	}
	out := make([]emr.Condition, 0, len(resources))
	for _, r := range resources {
		out = append(out, parseCondition(r))
	}
	return out, nil
}

// ListObservations retrieves labs and vitals with a numeric value
// FHIR: GET /Observation?patient={id}
func (c *Client) ListObservations(ctx context.Context, patientID string) ([]emr.Observation, error) {
	resources, err := search[Observation](ctx, c, "Observation", url.Values{"patient": {patientID}})
	if err != nil {
		return nil, err
	}
	out := make([]emr.Observation, 0, len(resources))
	for _, r := range resources {
		if isWoundAssessment(r) {
			continue
		}
		if obs, ok := parseObservation(r); ok {
			out = append(out, obs)
		}
	}
	return out, nil
}

// ListEncounters retrieves visits and admissions
// FHIR: GET /Encounter?patient={id}
func (c *Client) ListEncounters(ctx context.Context, patientID string) ([]emr.Encounter, error) {
	resources, err := search[Encounter](ctx, c, "Encounter", url.Values{"patient": {patientID}})
	if err != nil {
		return nil, err
	}
	out := make([]emr.Encounter, 0, len(resources))
	for _, r := range resources {
		out = append(out, parseEncounter(r))
	}
	return out, nil
}

// ListWoundAssessments retrieves wound measurement panels
// FHIR: GET /Observation?patient={id}&category=wound-assessment
func (c *Client) ListWoundAssessments(ctx context.Context, patientID string) ([]emr.WoundAssessment, error) {
	params := url.Values{
		"patient":  {patientID},
		"category": {emr.CategoryWoundAssessment},
	}
	resources, err := search[Observation](ctx, c, "Observation", params)
	if err != nil {
		return nil, err
	}
	out := make([]emr.WoundAssessment, 0, len(resources))
	for _, r := range resources {
		out = append(out, parseWoundAssessment(r))
	}
	return out, nil
}

// ListCoverage retrieves insurance coverage
// FHIR: GET /Coverage?beneficiary={id}
func (c *Client) ListCoverage(ctx context.Context, patientID string) ([]emr.Coverage, error) {
	resources, err := search[Coverage](ctx, c, "Coverage", url.Values{"beneficiary": {"Patient/" + patientID}})
	if err != nil {
		return nil, err
	}
	out := make([]emr.Coverage, 0, len(resources))
	for _, r := range resources {
		out = append(out, parseCoverage(r))
	}
	return out, nil
}

func isWoundAssessment(o Observation) bool {
	for _, cat := range o.Category {
		for _, coding := range cat.Coding {
			if coding.Code == emr.CategoryWoundAssessment {
				return true
			}
		}
	}
	return false
}

// search runs a FHIR search and decodes every entry whose resourceType matches.
func search[T any](ctx context.Context, c *Client, resourceType string, params url.Values) ([]T, error) {
	var bundle Bundle
	if err := c.get(ctx, "/"+resourceType, params, &bundle); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		var header struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &header); err != nil || header.ResourceType != resourceType {
			continue
		}
		var resource T
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			return nil, fmt.Errorf("fhir: failed to decode %s: %w", resourceType, err)
		}
		out = append(out, resource)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	token, err := c.ensureAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("fhir: authentication failed: %w", err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("fhir: failed to create request: %w", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("Accept", "application/fhir+json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fhir: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return emr.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("fhir: API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fhir: failed to decode response: %w", err)
	}
	return nil
}

// ensureAuthenticated returns a valid access token, refreshing it when it is
// within five minutes of expiry.
func (c *Client) ensureAuthenticated(ctx context.Context) (string, error) {
	if c.clientID == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(5*time.Minute).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

// authenticate performs OAuth 2.0 client credentials authentication. Callers hold c.mu.
func (c *Client) authenticate(ctx context.Context) error {
	tokenURL := c.baseURL + "/connect/token"

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("scope", "system/Patient.read system/Condition.read system/Observation.read system/Encounter.read system/Coverage.read")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("auth failed (status %d): %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return nil
}
