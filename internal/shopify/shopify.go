// Package shopify reads the store catalogue and policies from the Shopify
// Admin REST API and renders them as prompt context.
package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/allaspectsdev/chatproxy/internal/config"
	"github.com/allaspectsdev/chatproxy/internal/upstream"
)

// Operation names used in logs, metrics and spans.
const (
	OpProducts = "shopify.products"
	OpPolicies = "shopify.policies"
)

// UntitledProduct names a product whose title is blank.
const UntitledProduct = "Untitled product"

const accessTokenHeader = "X-Shopify-Access-Token"

// Product is the part of a catalogue entry shown to the model.
type Product struct {
	Title       string
	Description string
}

// Policy is one published store policy.
type Policy struct {
	Title string
	Body  string
}

// Client fetches enrichment data for a single store.
type Client struct {
	up  *upstream.Client
	cfg config.ShopifyConfig
}

// NewClient returns a Client for the store described by cfg.
func NewClient(up *upstream.Client, cfg config.ShopifyConfig) *Client {
	return &Client{up: up, cfg: cfg}
}

// Configured reports whether the store domain and admin token are both set.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// ProductBlock fetches the newest products and renders them. On any failure
// it returns placeholder and false.
func (c *Client) ProductBlock(ctx context.Context, placeholder string) (string, bool) {
	return upstream.FetchWithFallback(ctx, c.up, c.ProductsRequest(), func(body []byte) (string, error) {
		products, err := ParseProducts(body)
		if err != nil {
			return "", err
		}
		return RenderProducts(products), nil
	}, placeholder)
}

// PolicyBlock fetches the store policies and renders them. On any failure it
// returns placeholder and false.
func (c *Client) PolicyBlock(ctx context.Context, placeholder string) (string, bool) {
	return upstream.FetchWithFallback(ctx, c.up, c.PoliciesRequest(), func(body []byte) (string, error) {
		policies, err := ParsePolicies(body)
		if err != nil {
			return "", err
		}
		return RenderPolicies(policies), nil
	}, placeholder)
}

// ProductsRequest builds the product listing call, limited to the configured
// page size.
func (c *Client) ProductsRequest() upstream.Request {
	return c.request(OpProducts, "/products.json?limit="+strconv.Itoa(c.cfg.ProductLimit))
}

// PoliciesRequest builds the policy listing call.
func (c *Client) PoliciesRequest() upstream.Request {
	return c.request(OpPolicies, "/policies.json")
}

func (c *Client) request(op, path string) upstream.Request {
	header := http.Header{}
	header.Set(accessTokenHeader, c.cfg.AdminToken)
	return upstream.Request{
		Op:      op,
		Method:  http.MethodGet,
		URL:     c.cfg.AdminBaseURL() + path,
		Header:  header,
		Timeout: c.cfg.TimeoutDuration(),
	}
}

// ParseProducts decodes a products.json payload. A missing or empty
// "products" array is reported as upstream.ErrEmpty.
func ParseProducts(body []byte) ([]Product, error) {
	list, err := listField(body, "products")
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(list))
	for _, p := range list {
		title := strings.TrimSpace(p.Get("title").String())
		if title == "" {
			title = UntitledProduct
		}
		products = append(products, Product{
			Title:       title,
			Description: StripHTML(p.Get("body_html").String()),
		})
	}
	return products, nil
}

// ParsePolicies decodes a policies.json payload. Policies without a title
// are skipped; if none remain the result is upstream.ErrEmpty.
func ParsePolicies(body []byte) ([]Policy, error) {
	list, err := listField(body, "policies")
	if err != nil {
		return nil, err
	}

	policies := make([]Policy, 0, len(list))
	for _, p := range list {
		title := strings.TrimSpace(p.Get("title").String())
		if title == "" {
			continue
		}
		policies = append(policies, Policy{
			Title: title,
			Body:  StripHTML(p.Get("body").String()),
		})
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("policies: no titled policy: %w", upstream.ErrEmpty)
	}
	return policies, nil
}

func listField(body []byte, field string) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: %w", field, upstream.ErrMalformed)
	}
	res := gjson.GetBytes(body, field)
	if !res.IsArray() {
		return nil, fmt.Errorf("%s: missing array: %w", field, upstream.ErrEmpty)
	}
	list := res.Array()
	if len(list) == 0 {
		return nil, fmt.Errorf("%s: %w", field, upstream.ErrEmpty)
	}
	return list, nil
}

// RenderProducts formats products as a numbered list, one per line:
// "(1) Title: description".
func RenderProducts(products []Product) string {
	lines := make([]string, 0, len(products))
	for i, p := range products {
		if p.Description == "" {
			lines = append(lines, fmt.Sprintf("(%d) %s", i+1, p.Title))
			continue
		}
		lines = append(lines, fmt.Sprintf("(%d) %s: %s", i+1, p.Title, p.Description))
	}
	return strings.Join(lines, "\n")
}

// RenderPolicies formats policies as a bulleted list: "- Title: body".
func RenderPolicies(policies []Policy) string {
	lines := make([]string, 0, len(policies))
	for _, p := range policies {
		if p.Body == "" {
			lines = append(lines, "- "+p.Title)
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", p.Title, p.Body))
	}
	return strings.Join(lines, "\n")
}
