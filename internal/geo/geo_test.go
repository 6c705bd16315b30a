package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newServer(t *testing.T, status int, body string) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "18.52", r.URL.Query().Get("lat"))
		assert.Equal(t, "73.85", r.URL.Query().Get("lon"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewNominatim(Config{BaseURL: srv.URL, UserAgent: "test"}, zap.NewNop().Sugar())
}

func TestCityFallbackOrder(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"city", `{"address":{"city":"Pune","county":"Haveli"}}`, "Pune"},
		{"town", `{"address":{"town":"Lonavala","state_district":"Pune"}}`, "Lonavala"},
		{"village", `{"address":{"village":"Mulshi"}}`, "Mulshi"},
		{"county", `{"address":{"county":"Haveli"}}`, "Haveli"},
		{"none", `{"address":{"country":"India"}}`, UnknownCity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newServer(t, http.StatusOK, tc.body)
			assert.Equal(t, tc.want, g.City(context.Background(), 18.52, 73.85))
		})
	}
}

func TestCityFailuresYieldUnknown(t *testing.T) {
	g := newServer(t, http.StatusBadGateway, "")
	assert.Equal(t, UnknownCity, g.City(context.Background(), 18.52, 73.85))

	g = newServer(t, http.StatusOK, "<html>")
	assert.Equal(t, UnknownCity, g.City(context.Background(), 18.52, 73.85))
}

func TestCityUnreachable(t *testing.T) {
	g := NewNominatim(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop().Sugar())
	require.Equal(t, UnknownCity, g.City(context.Background(), 0, 0))
}
