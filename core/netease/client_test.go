package netease

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constReader yields the same byte forever, so every request is signed with
// the same key and the fake API can decrypt it.
type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

const fakeSecretKey = "aaaaaaaaaaaaaaaa"

type fakeCall struct {
	Path      string
	Params    map[string]string
	UserAgent string
	Method    string
}

// fakeResponse is returned by a route: status code and raw body.
type fakeResponse struct {
	Status int
	Body   string
}

type fakeAPI struct {
	t      *testing.T
	server *httptest.Server
	routes map[string]func(params map[string]string) fakeResponse

	mu    sync.Mutex
	calls []fakeCall
}

func newFakeAPI(t *testing.T, routes map[string]func(params map[string]string) fakeResponse) (*fakeAPI, *Client) {
	t.Helper()

	api := &fakeAPI{t: t, routes: routes}
	api.server = httptest.NewServer(http.HandlerFunc(api.handle))
	t.Cleanup(api.server.Close)

	client := NewClient()
	client.SetBaseURL(api.server.URL + "/weapi")
	client.SetSigner(NewSigner(constReader(0)))
	return api, client
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/weapi")

	q := r.URL.Query()
	if q.Get("encSecKey") != rsaEncryptHex([]byte(fakeSecretKey)) {
		http.Error(w, "bad encSecKey", http.StatusForbidden)
		return
	}
	first := decryptCBC(f.t, q.Get("params"), []byte(fakeSecretKey))
	plain := decryptCBC(f.t, string(first), []byte(presetKey))

	var params map[string]string
	if err := json.Unmarshal(plain, &params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{
		Path:      path,
		Params:    params,
		UserAgent: r.UserAgent(),
		Method:    r.Method,
	})
	f.mu.Unlock()

	route, ok := f.routes[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	resp := route(params)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}

func (f *fakeAPI) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeAPI) CallsTo(path string) []fakeCall {
	var out []fakeCall
	for _, c := range f.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func static(status int, body string) func(map[string]string) fakeResponse {
	return func(map[string]string) fakeResponse {
		return fakeResponse{Status: status, Body: body}
	}
}

type pingResult struct {
	Code  int      `json:"code"`
	Items []string `json:"items"`
}

func (r *pingResult) empty() bool { return len(r.Items) == 0 }

func TestClient_Post_SignsAndDecodes(t *testing.T) {
	api, client := newFakeAPI(t, map[string]func(map[string]string) fakeResponse{
		"/ping": static(http.StatusOK, `{"code":200,"items":["x"]}`),
	})

	var out pingResult
	err := client.post(context.Background(), "/ping", map[string]any{"id": "42"}, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Items)

	calls := api.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, DefaultUserAgent, calls[0].UserAgent)
	assert.Equal(t, map[string]string{"id": "42"}, calls[0].Params)
}

func TestClient_Post_Errors(t *testing.T) {
	tests := []struct {
		name    string
		route   func(map[string]string) fakeResponse
		wantErr error
	}{
		{
			name:    "http status",
			route:   static(http.StatusBadGateway, `oops`),
			wantErr: ErrNetwork,
		},
		{
			name:    "vendor code",
			route:   static(http.StatusOK, `{"code":-460,"msg":"cheating"}`),
			wantErr: ErrNetwork,
		},
		{
			name:    "not json",
			route:   static(http.StatusOK, `<html>`),
			wantErr: ErrDecode,
		},
		{
			name:    "wrong shape",
			route:   static(http.StatusOK, `{"code":200,"items":{"a":1}}`),
			wantErr: ErrDecode,
		},
		{
			name:    "empty payload",
			route:   static(http.StatusOK, `{"code":200,"items":[]}`),
			wantErr: ErrEmptyResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newFakeAPI(t, map[string]func(map[string]string) fakeResponse{"/ping": tt.route})

			var out pingResult
			err := client.post(context.Background(), "/ping", map[string]any{}, &out)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_Post_Timeout(t *testing.T) {
	_, client := newFakeAPI(t, map[string]func(map[string]string) fakeResponse{
		"/slow": func(map[string]string) fakeResponse {
			time.Sleep(300 * time.Millisecond)
			return fakeResponse{Status: http.StatusOK, Body: `{"code":200,"items":["late"]}`}
		},
	})
	client.SetTimeout(50 * time.Millisecond)

	var out pingResult
	err := client.post(context.Background(), "/slow", map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClient_Post_ServerGone(t *testing.T) {
	api, client := newFakeAPI(t, nil)
	api.server.Close()

	var out pingResult
	err := client.post(context.Background(), "/ping", map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClient_Post_SigningFailure(t *testing.T) {
	_, client := newFakeAPI(t, nil)
	client.SetSigner(NewSigner(strings.NewReader("")))

	var out pingResult
	err := client.post(context.Background(), "/ping", map[string]any{}, &out)
	assert.ErrorIs(t, err, ErrRandomness)
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Contains(t, c.userAgent, "iPhone")

	c.SetBaseURL("http://localhost:3000/weapi/")
	assert.Equal(t, "http://localhost:3000/weapi", c.baseURL)
}
