package neuvector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/policy-exporter/pkg/config"
)

type testRoute struct {
	base    string
	key     string
	forward bool
}

func (r testRoute) BaseURL() string               { return r.base }
func (r testRoute) ControllerKey() (string, bool) { return r.key, r.forward }

type recorded struct {
	method string
	path   string
	header http.Header
	body   []byte
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func newRecordingServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, recorded{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: data})
		rec.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClientGet(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, `{"groups":[]}`)

	client, err := NewClient(Options{Route: testRoute{base: srv.URL + "/"}, BearerToken: "tok"})
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), "/group")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `{"groups":[]}`, resp.Text())

	calls := rec.all()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/v1/group", call.path)
	assert.Equal(t, "Bearer tok", call.header.Get("Authorization"))
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))
	assert.Empty(t, call.header.Values(HeaderControllerKey))
}

func TestClientPostEncodesJSON(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, "apiVersion: v1\nkind: List\n")

	client, err := NewClient(Options{
		Route:       testRoute{base: srv.URL + "/", key: "nv-key", forward: true},
		BearerToken: "tok",
	})
	require.NoError(t, err)

	payload := map[string]any{"groups": []string{"nv.web.prod"}, "policy_mode": "Protect"}
	resp, err := client.Post(context.Background(), "/file/group", payload)
	require.NoError(t, err)
	assert.Equal(t, "apiVersion: v1\nkind: List\n", resp.Text())

	calls := rec.all()
	require.Len(t, calls, 1)
	call := calls[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/v1/file/group", call.path)
	assert.Equal(t, "nv-key", call.header.Get(HeaderControllerKey))

	var got map[string]any
	require.NoError(t, json.Unmarshal(call.body, &got))
	assert.Equal(t, []any{"nv.web.prod"}, got["groups"])
	assert.Equal(t, "Protect", got["policy_mode"])
}

func TestClientNon2xxIsNotAnError(t *testing.T) {
	for _, status := range []int{http.StatusMovedPermanently, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError} {
		srv, _ := newRecordingServer(t, status, "nope")
		client, err := NewClient(Options{Route: testRoute{base: srv.URL + "/"}})
		require.NoError(t, err)

		resp, err := client.Get(context.Background(), "/group")
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		assert.False(t, resp.OK())
		assert.Equal(t, "nope", resp.Text())
	}
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL + "/"
	srv.Close()

	client, err := NewClient(Options{Route: testRoute{base: base}})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/group")
	assert.Error(t, err)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient(Options{Route: testRoute{base: srv.URL + "/"}, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/group")
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Options{})
	assert.Error(t, err)

	_, err = NewClient(Options{Route: testRoute{base: "https://nv.local"}})
	assert.ErrorContains(t, err, "must end with /")
}

func TestClientThroughGatewayTopology(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, recorded{method: r.Method, path: r.URL.Path, header: r.Header.Clone()})
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	route := config.Gateway{
		Host:             strings.TrimPrefix(srv.URL, "https://"),
		ClusterID:        "c-m-1",
		ControllerAPIKey: "nv-key",
	}
	client, err := NewClient(Options{Route: route, BearerToken: "rancher-token", Transport: srv.Client().Transport})
	require.NoError(t, err)

	_, err = client.Get(context.Background(), "/group")
	require.NoError(t, err)

	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, "/k8s/clusters/c-m-1/api/v1/namespaces/cattle-neuvector-system/services/https:neuvector-svc-controller-api:10443/proxy/v1/group", calls[0].path)
	assert.Equal(t, "nv-key", calls[0].header.Get(HeaderControllerKey))
	assert.Equal(t, "Bearer rancher-token", calls[0].header.Get("Authorization"))
}

// Direct mode never sends the controller key header; gateway mode always
// does. The bearer header is common to both.
func TestHeaderSetsByTopologyProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		token := rapid.StringMatching(`[A-Za-z0-9:._-]{1,40}`).Draw(rt, "token")
		key := rapid.StringMatching(`[A-Za-z0-9._-]{0,40}`).Draw(rt, "key")
		gateway := rapid.Bool().Draw(rt, "gateway")

		var route Route = config.Direct{Host: "nv.local"}
		if gateway {
			route = config.Gateway{Host: "rancher.local", ClusterID: "c-1", ControllerAPIKey: key}
		}

		h := buildHeaders(token, route)
		if h.Get("Authorization") != "Bearer "+token {
			rt.Fatalf("unexpected bearer header %q", h.Get("Authorization"))
		}
		if h.Get("Content-Type") != "application/json" {
			rt.Fatalf("unexpected content type %q", h.Get("Content-Type"))
		}
		_, present := h[http.CanonicalHeaderKey(HeaderControllerKey)]
		if present != gateway {
			rt.Fatalf("controller key header present=%v in gateway=%v", present, gateway)
		}
		if gateway && h.Get(HeaderControllerKey) != key {
			rt.Fatalf("controller key mismatch")
		}
	})
}
