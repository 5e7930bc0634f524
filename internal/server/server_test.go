package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/health"
	"github.com/gustycube/uplinks/internal/registry"
	"github.com/gustycube/uplinks/internal/uplinks"
)

type fakeRegistry map[asn.Number][]asn.Number

func (f fakeRegistry) AutNum(_ context.Context, n asn.Number) ([]registry.Attribute, error) {
	var attrs []registry.Attribute
	for _, up := range f[n] {
		attrs = append(attrs, registry.Attribute{Name: "import", Value: "from " + up.Handle() + " accept ANY"})
	}
	return attrs, nil
}

type fakeHolders struct{}

func (fakeHolders) Holder(_ context.Context, n asn.Number) (string, error) {
	return "NAME-" + n.String(), nil
}

type fakeResolver struct{}

func (fakeResolver) LookupASN(_ context.Context, ip string) (asn.Number, error) {
	if ip == "193.0.6.139" {
		return 3333, nil
	}
	return 0, uplinks.ErrUnresolved
}

type slowRunner struct{}

func (slowRunner) Run(ctx context.Context, _ string, _ int, _ uplinks.Sink) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	b := uplinks.New(fakeRegistry{3333: {174, 3356}, 174: {1299}}, fakeHolders{}, fakeResolver{}, nil)
	ts := httptest.NewServer(New(b, nil, Options{}).Routes())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestGetUplinks_JSON(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/v1/uplinks/3333?deep=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var tree uplinks.Tree
	require.NoError(t, json.Unmarshal([]byte(body), &tree))
	assert.Equal(t, "3333", tree.Query)
	assert.Equal(t, 2, tree.Deep)
	require.NotNil(t, tree.Root)
	require.Len(t, tree.Root.Uplinks, 2)
	assert.Equal(t, asn.Number(1299), tree.Root.Uplinks[0].Uplinks[0].ASN)
}

func TestGetUplinks_Text(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/v1/uplinks/193.0.6.139?format=text")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[193.0.6.139]\n"+
		"3333    NAME-3333\n"+
		"└── 174     NAME-174\n"+
		"└── 3356    NAME-3356\n", body)
}

func TestGetUplinks_CSV(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/v1/uplinks/3333?format=csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Equal(t, "level,parent,asn,holder\n0,3333,174,NAME-174\n0,3333,3356,NAME-3356\n", body)
}

func TestGetUplinks_JSONL(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/v1/uplinks/3333?format=jsonl")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)

	var e uplinks.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, asn.Number(174), e.ASN)
	assert.Equal(t, "NAME-174", e.Holder)
}

func TestGetUplinks_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{
		"/v1/uplinks/AS3333",
		"/v1/uplinks/0",
		"/v1/uplinks/3333?deep=4",
		"/v1/uplinks/3333?deep=x",
		"/v1/uplinks/3333?format=xml",
	} {
		resp, body := get(t, ts.URL+path)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)

		var e ErrResponse
		require.NoError(t, json.Unmarshal([]byte(body), &e), path)
		assert.NotEmpty(t, e.ErrorText, path)
		assert.NotEmpty(t, e.RequestID, path)
	}
}

func TestGetUplinks_Unresolved(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/v1/uplinks/10.0.0.1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetUplinks_Timeout(t *testing.T) {
	ts := httptest.NewServer(New(slowRunner{}, nil, Options{Timeout: 50 * time.Millisecond}).Routes())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/v1/uplinks/3333")
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	h := health.NewHandler(nil)
	ts := httptest.NewServer(New(slowRunner{}, h, Options{}).Routes())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	h.SetReady(true)
	resp, _ = get(t, ts.URL+"/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := health.NewHandler(nil)
	done := make(chan error, 1)
	go func() { done <- New(slowRunner{}, h, Options{}).ListenAndServe(ctx, "127.0.0.1:0") }()

	require.Eventually(t, h.IsReady, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, h.IsReady())
}
