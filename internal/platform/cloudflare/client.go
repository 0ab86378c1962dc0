package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/imamik/stackforge/internal/provider"
	"github.com/imamik/stackforge/internal/provisioning/certificate"
)

// DefaultBaseURL is the Cloudflare v4 API root.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// Client is a minimal Cloudflare API client for DNS record management. It
// implements certificate.DNSZone for domains whose zone lives on Cloudflare.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Record represents a Cloudflare DNS record.
type Record struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int64  `json:"ttl,omitempty"`
	Proxied bool   `json:"proxied"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type zoneResult struct {
	ID string `json:"id"`
}

type resultInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

type listResponse struct {
	Success    bool       `json:"success"`
	Errors     []apiError `json:"errors"`
	Result     []Record   `json:"result"`
	ResultInfo resultInfo `json:"result_info"`
}

// NewClient creates a new Cloudflare API client.
func NewClient(apiToken string, opts ...Option) *Client {
	c := &Client{
		apiToken:   apiToken,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupZone implements certificate.DNSZone. It walks up from domain until
// a zone with that exact name is found.
func (c *Client) LookupZone(ctx context.Context, domain string) (string, error) {
	for name := certificate.FQDN(domain); strings.Contains(name, "."); name = name[strings.Index(name, ".")+1:] {
		id, err := c.zoneID(ctx, name)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s: %w", domain, certificate.ErrZoneNotFound)
}

func (c *Client) zoneID(ctx context.Context, name string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/zones?name="+url.QueryEscape(name), nil)
	if err != nil {
		return "", err
	}

	var resp apiResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("get zone ID: %w", err)
	}

	var zones []zoneResult
	if err := json.Unmarshal(resp.Result, &zones); err != nil {
		return "", fmt.Errorf("parse zones: %w", err)
	}
	if len(zones) == 0 {
		return "", nil
	}
	return zones[0].ID, nil
}

// ListDNSRecords returns the records in the zone with the given name and
// type. Empty filters match everything.
func (c *Client) ListDNSRecords(ctx context.Context, zoneID, name, recordType string) ([]Record, error) {
	var all []Record
	page := 1

	for {
		q := url.Values{}
		q.Set("per_page", "100")
		q.Set("page", fmt.Sprint(page))
		if name != "" {
			q.Set("name", name)
		}
		if recordType != "" {
			q.Set("type", recordType)
		}
		req, err := c.newRequest(ctx, http.MethodGet,
			fmt.Sprintf("/zones/%s/dns_records?%s", zoneID, q.Encode()), nil)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if err := c.do(req, &resp); err != nil {
			return nil, fmt.Errorf("list DNS records page %d: %w", page, err)
		}

		all = append(all, resp.Result...)

		if page >= resp.ResultInfo.TotalPages {
			break
		}
		page++
	}

	return all, nil
}

// UpsertRecord implements certificate.DNSZone. An alias becomes a CNAME to
// the target's DNS name, which Cloudflare flattens at the zone apex.
func (c *Client) UpsertRecord(ctx context.Context, zoneID string, rec certificate.Record) error {
	want := toRecord(rec)
	existing, err := c.ListDNSRecords(ctx, zoneID, want.Name, want.Type)
	if err != nil {
		return err
	}

	body, err := json.Marshal(want)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	method, path := http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID)
	if len(existing) > 0 {
		if existing[0].Content == want.Content && existing[0].Proxied == want.Proxied {
			return nil
		}
		method, path = http.MethodPut, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, existing[0].ID)
	}

	req, err := c.newRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	var resp apiResponse
	if err := c.do(req, &resp); err != nil {
		return fmt.Errorf("upsert DNS record %s %s: %w", want.Type, want.Name, err)
	}
	return nil
}

// DeleteRecord implements certificate.DNSZone.
func (c *Client) DeleteRecord(ctx context.Context, zoneID string, rec certificate.Record) error {
	want := toRecord(rec)
	existing, err := c.ListDNSRecords(ctx, zoneID, want.Name, want.Type)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return fmt.Errorf("record %s %s: %w", want.Type, want.Name, provider.ErrNotFound)
	}
	for _, r := range existing {
		if err := c.DeleteDNSRecord(ctx, zoneID, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDNSRecord deletes a DNS record by ID.
func (c *Client) DeleteDNSRecord(ctx context.Context, zoneID, recordID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete,
		fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), nil)
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := c.do(req, &resp); err != nil {
		return fmt.Errorf("delete DNS record %s: %w", recordID, err)
	}

	return nil
}

func toRecord(rec certificate.Record) Record {
	r := Record{
		Type:    rec.Type,
		Name:    certificate.FQDN(rec.Name),
		Content: strings.TrimSuffix(rec.Value, "."),
		TTL:     rec.TTL,
	}
	if rec.Alias != nil {
		r.Type = "CNAME"
		r.Content = strings.TrimSuffix(rec.Alias.DNSName, ".")
		r.TTL = 1
	}
	if r.TTL == 0 {
		r.TTL = certificate.ValidationTTL
	}
	return r
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w (status %d)", err, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}
