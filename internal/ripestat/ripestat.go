// Package ripestat talks to the RIPEstat Data API.
package ripestat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/cache"
	"github.com/gustycube/uplinks/internal/httpclient"
)

// Endpoint is the breaker and metrics name for RIPEstat calls
const Endpoint = "stat"

// ErrNoASN is returned when network-info knows the address but no origin AS
var ErrNoASN = errors.New("no origin AS for address")

type networkInfo struct {
	Data struct {
		ASNs   []asn.Number `json:"asns"`
		Prefix string       `json:"prefix"`
	} `json:"data"`
}

type asOverview struct {
	Data struct {
		Holder string `json:"holder"`
	} `json:"data"`
}

// Client queries network-info and as-overview
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

// NetworkInfo returns the first origin AS announcing ip
func (c *Client) NetworkInfo(ctx context.Context, ip string) (asn.Number, error) {
	key := "netinfo:" + ip
	var n asn.Number
	if cache.GetJSON(ctx, c.cache, key, &n) {
		return n, nil
	}

	var resp networkInfo
	u := fmt.Sprintf("%s/network-info/data.json?resource=%s", c.base, url.QueryEscape(ip))
	if err := c.http.GetJSON(ctx, Endpoint, u, &resp); err != nil {
		return 0, err
	}
	if len(resp.Data.ASNs) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoASN, ip)
	}
	n = resp.Data.ASNs[0]
	cache.SetJSON(ctx, c.cache, key, n)
	return n, nil
}

// LookupASN makes Client usable as an iplookup.Resolver
func (c *Client) LookupASN(ctx context.Context, ip string) (asn.Number, error) {
	return c.NetworkInfo(ctx, ip)
}

// Holder returns the registered holder name of n
func (c *Client) Holder(ctx context.Context, n asn.Number) (string, error) {
	key := "holder:" + n.Handle()
	var holder string
	if cache.GetJSON(ctx, c.cache, key, &holder) {
		return holder, nil
	}

	var resp asOverview
	u := fmt.Sprintf("%s/as-overview/data.json?resource=%s", c.base, n.Handle())
	if err := c.http.GetJSON(ctx, Endpoint, u, &resp); err != nil {
		return "", err
	}
	cache.SetJSON(ctx, c.cache, key, resp.Data.Holder)
	return resp.Data.Holder, nil
}
