package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONDecodesAndSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2024-01-02", r.URL.Query().Get("from"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		_, _ = w.Write([]byte(`{"close": 12.5}`))
	}))
	defer srv.Close()

	c := NewClient(WithHeader("X-Key", "secret"))
	var got struct {
		Close float64 `json:"close"`
	}
	err := c.GetJSON(context.Background(), srv.URL+"/eod/X", url.Values{"from": {"2024-01-02"}}, &got)
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.Close)
}

func TestGetJSONStatusError(t *testing.T) {
	cases := []struct {
		code      int
		temporary bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.code)
			}))
			defer srv.Close()

			err := NewClient().GetJSON(context.Background(), srv.URL+"/x", nil, nil)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.code, se.StatusCode)
			assert.Equal(t, tc.temporary, se.Temporary())
			assert.True(t, IsStatus(err, tc.code))
			assert.Contains(t, se.Error(), "nope")
		})
	}
}
