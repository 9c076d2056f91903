package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the external policy service. All methods return an
// error on transport or policy-service failure; callers decide whether
// to fall back or to log and continue.
type Client interface {
	Insert(ctx context.Context, facts ...Fact) error
	Delete(ctx context.Context, pattern Fact) error
	Authorize(ctx context.Context, actor *Value, action string, resource *Value) (bool, error)
	ListAuthorized(ctx context.Context, actor *Value, action string, resourceType string) ([]string, error)
}

type httpClient struct {
	client *resty.Client
}

func NewClient(endpoint, apiKey string, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &httpClient{client: client}
}

type insertRequest struct {
	Facts []Fact `json:"facts"`
}

type authorizeRequest struct {
	Actor    *Value `json:"actor"`
	Action   string `json:"action"`
	Resource *Value `json:"resource"`
}

type authorizeResponse struct {
	Allowed bool `json:"allowed"`
}

type listRequest struct {
	Actor        *Value `json:"actor"`
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
}

type listResponse struct {
	IDs []string `json:"ids"`
}

func (c *httpClient) Insert(ctx context.Context, facts ...Fact) error {
	if len(facts) == 0 {
		return nil
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(insertRequest{Facts: facts}).
		Post("/facts")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("policy service insert failed: %s", resp.Status())
	}
	return nil
}

func (c *httpClient) Delete(ctx context.Context, pattern Fact) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(pattern).
		Post("/facts/delete")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("policy service delete failed: %s", resp.Status())
	}
	return nil
}

func (c *httpClient) Authorize(ctx context.Context, actor *Value, action string, resource *Value) (bool, error) {
	var out authorizeResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(authorizeRequest{Actor: actor, Action: action, Resource: resource}).
		SetResult(&out).
		Post("/authorize")
	if err != nil {
		return false, err
	}
	if resp.IsError() {
		return false, fmt.Errorf("policy service authorize failed: %s", resp.Status())
	}
	return out.Allowed, nil
}

func (c *httpClient) ListAuthorized(ctx context.Context, actor *Value, action string, resourceType string) ([]string, error) {
	var out listResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(listRequest{Actor: actor, Action: action, ResourceType: resourceType}).
		SetResult(&out).
		Post("/list")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("policy service list failed: %s", resp.Status())
	}
	return out.IDs, nil
}
