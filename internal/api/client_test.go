package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			_, has := r.Header["Authorization"]
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"authorization": r.Header.Get("Authorization"),
				"hasHeader":     has,
				"method":        r.Method,
			})
		case "/fail":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid credentials"}`))
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		case "/garbage":
			_, _ = w.Write([]byte(`{not json`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type echoReply struct {
	Authorization string `json:"authorization"`
	HasHeader     bool   `json:"hasHeader"`
	Method        string `json:"method"`
}

func TestBearerAttachedWhenPresent(t *testing.T) {
	srv := echoServer(t)
	token := "abc"
	c := NewClient(srv.URL, WithTokenSource(TokenFunc(func() string { return token })))

	var out echoReply
	require.NoError(t, c.Do(context.Background(), http.MethodPost, "/echo", map[string]string{"a": "b"}, &out))
	assert.Equal(t, "Bearer abc", out.Authorization)
	assert.Equal(t, http.MethodPost, out.Method)

	token = ""
	out = echoReply{}
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/echo", nil, &out))
	assert.False(t, out.HasHeader)
}

func TestNoTokenSourceOmitsHeader(t *testing.T) {
	srv := echoServer(t)
	var out echoReply
	require.NoError(t, NewClient(srv.URL+"/").Do(context.Background(), http.MethodGet, "/echo", nil, &out))
	assert.False(t, out.HasHeader)

	out = echoReply{}
	require.NoError(t, NewClient(srv.URL).WithToken("xyz").Do(context.Background(), http.MethodGet, "/echo", nil, &out))
	assert.Equal(t, "Bearer xyz", out.Authorization)
}

func TestStatusErrors(t *testing.T) {
	srv := echoServer(t)
	c := NewClient(srv.URL)

	err := c.Do(context.Background(), http.MethodPost, "/fail", nil, nil)
	se, ok := AsStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "Invalid credentials", se.Message)
	assert.True(t, se.ClientError())

	err = c.Do(context.Background(), http.MethodGet, "/broken", nil, nil)
	se, ok = AsStatus(err)
	require.True(t, ok)
	assert.False(t, se.ClientError())
	assert.Empty(t, se.Message)

	var out map[string]any
	err = c.Do(context.Background(), http.MethodGet, "/garbage", nil, &out)
	require.Error(t, err)
	_, ok = AsStatus(err)
	assert.False(t, ok)
}
