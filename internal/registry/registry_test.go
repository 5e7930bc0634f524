package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustycube/uplinks/internal/cache"
	"github.com/gustycube/uplinks/internal/httpclient"
)

const autNum3333 = `{
  "objects": {
    "object": [{
      "type": "aut-num",
      "attributes": {
        "attribute": [
          {"name": "aut-num", "value": "AS3333"},
          {"name": "as-name", "value": "RIPE-NCC-AS"},
          {"name": "import", "value": "from AS174 accept ANY"},
          {"name": "import", "value": "from AS1299 accept AS-FOO"},
          {"name": "export", "value": "to AS174 announce AS3333"}
        ]
      }
    }]
  }
}`

func newRegistry(t *testing.T, h http.HandlerFunc, c cache.Cache) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/ripe", httpclient.New(httpclient.Options{Timeout: 5 * time.Second}), c)
}

func TestAutNum(t *testing.T) {
	c := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ripe/aut-num/AS3333", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.True(t, r.Close, "expected Connection: close")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(autNum3333))
	}, nil)

	attrs, err := c.AutNum(context.Background(), 3333)
	require.NoError(t, err)
	require.Len(t, attrs, 5)
	assert.Equal(t, Attribute{Name: "import", Value: "from AS174 accept ANY"}, attrs[2])
}

func TestAutNum_NotFound(t *testing.T) {
	c := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errormessages":{}}`, http.StatusNotFound)
	}, nil)

	_, err := c.AutNum(context.Background(), 64512)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httpclient.StatusCode(err))
}

func TestAutNum_NonOKSuccess(t *testing.T) {
	c := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	_, err := c.AutNum(context.Background(), 3333)
	assert.True(t, httpclient.IsHTTPError(err))
}

func TestAutNum_Empty(t *testing.T) {
	c := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objects":{"object":[]}}`))
	}, nil)

	_, err := c.AutNum(context.Background(), 3333)
	assert.ErrorIs(t, err, ErrNoObject)
}

func TestAutNum_Cached(t *testing.T) {
	var hits atomic.Int32
	c := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(autNum3333))
	}, cache.NewMemory(16, time.Minute))

	for i := 0; i < 2; i++ {
		attrs, err := c.AutNum(context.Background(), 3333)
		require.NoError(t, err)
		assert.Len(t, attrs, 5)
	}
	assert.Equal(t, int32(1), hits.Load())
}
