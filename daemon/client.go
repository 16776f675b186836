package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/vnetd/vnetd/device"
	"github.com/vnetd/vnetd/neterr"
	"github.com/vnetd/vnetd/subnet"
)

// empty is a placeholder type for requests that do not expect a response body.
type empty struct{}

// Client is a typed client for the vnetd API.
type Client struct {
	base string
	http *retryablehttp.Client
}

// NewClient creates a Client for the daemon at baseURL, e.g.
// "http://127.0.0.1:3030". Connection failures are retried; error responses
// are not, since mutating operations are not idempotent.
func NewClient(baseURL string) *Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 2
	c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	return &Client{base: baseURL, http: c}
}

// CreateTun requests a new TUN device. An empty name lets the platform
// assign one.
func (c *Client) CreateTun(ctx context.Context, name string) (device.Device, error) {
	return sendRequest[device.Device](ctx, c, http.MethodPost, tunEndpoint, CreateTunRequest{Name: name})
}

// ListTuns lists live TUN devices.
func (c *Client) ListTuns(ctx context.Context) ([]device.Device, error) {
	return sendRequest[[]device.Device](ctx, c, http.MethodGet, tunEndpoint, nil)
}

// CreateSubnet allocates the given CIDR.
func (c *Client) CreateSubnet(ctx context.Context, cidr string) (subnet.Subnet, error) {
	return sendRequest[subnet.Subnet](ctx, c, http.MethodPost, subnetEndpoint, CreateSubnetRequest{CIDR: cidr})
}

// ListSubnets lists allocated subnets.
func (c *Client) ListSubnets(ctx context.Context) ([]subnet.Subnet, error) {
	return sendRequest[[]subnet.Subnet](ctx, c, http.MethodGet, subnetEndpoint, nil)
}

// DeleteSubnet deallocates the given CIDR. The path segment is
// percent-encoded, so "10.1.0.0/24" travels as "10.1.0.0%2F24".
func (c *Client) DeleteSubnet(ctx context.Context, cidr string) error {
	_, err := sendRequest[empty](ctx, c, http.MethodDelete, subnetEndpoint+"/"+url.PathEscape(cidr), nil)
	return err
}

// Status fetches the daemon's runtime snapshot.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return sendRequest[map[string]any](ctx, c, http.MethodGet, statusEndpoint, nil)
}

// sendRequest sends an HTTP request to the given endpoint and decodes the
// response into T. Error responses are rebuilt into classified errors so
// callers can match on the same taxonomy the server uses.
func sendRequest[T any](ctx context.Context, c *Client, method, endpoint string, payload any) (T, error) {
	var res T
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return res, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+endpoint, body)
	if err != nil {
		return res, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return res, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return res, fmt.Errorf("received error response: %s", resp.Status)
		}
		return res, neterr.New(neterr.Kind(apiErr.Error), "%s", apiErr.Message)
	}
	if resp.StatusCode == http.StatusNoContent {
		return res, nil
	}
	if _, ok := any(&res).(*empty); ok {
		return res, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("failed to decode response: %w", err)
	}
	return res, nil
}
