// Package registry fetches aut-num objects from the RIPE Database REST API.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/cache"
	"github.com/gustycube/uplinks/internal/httpclient"
)

// Endpoint is the breaker and metrics name for registry calls
const Endpoint = "registry"

// ErrNoObject is returned when a 200 response carries no aut-num object
var ErrNoObject = errors.New("no aut-num object in response")

// Attribute is one name/value line of an RPSL object
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type lookupResponse struct {
	Objects struct {
		Object []struct {
			Type       string `json:"type"`
			Attributes struct {
				Attribute []Attribute `json:"attribute"`
			} `json:"attributes"`
		} `json:"object"`
	} `json:"objects"`
}

type Client struct {
	base  string
	http  *httpclient.Client
	cache cache.Cache
}

func New(base string, hc *httpclient.Client, c cache.Cache) *Client {
	if c == nil {
		c = cache.Nop{}
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc, cache: c}
}

// AutNum returns the attributes of the aut-num object for n, in registry order
func (c *Client) AutNum(ctx context.Context, n asn.Number) ([]Attribute, error) {
	key := "autnum:" + n.Handle()
	var attrs []Attribute
	if cache.GetJSON(ctx, c.cache, key, &attrs) {
		return attrs, nil
	}

	var resp lookupResponse
	u := fmt.Sprintf("%s/aut-num/%s", c.base, n.Handle())
	err := c.http.GetJSON(ctx, Endpoint, u, &resp,
		httpclient.WithHeader("Accept", "application/json"),
		httpclient.CloseConnection())
	if err != nil {
		return nil, err
	}
	if len(resp.Objects.Object) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoObject, n.Handle())
	}
	attrs = resp.Objects.Object[0].Attributes.Attribute
	cache.SetJSON(ctx, c.cache, key, attrs)
	return attrs, nil
}
