package proxied

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/predikt-markets/engine/internal/domain"
)

func TestVerifyEgressAllowsListedRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country_code":"US"}`))
	}))
	defer srv.Close()

	err := VerifyEgress(context.Background(), srv.URL, []string{"US", "CA"})
	require.NoError(t, err)
}

func TestVerifyEgressRejectsDisallowedRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country_code":"KP"}`))
	}))
	defer srv.Close()

	err := VerifyEgress(context.Background(), srv.URL, []string{"US", "CA"})
	require.ErrorIs(t, err, domain.ErrAuthConfig)
}

func TestVerifyEgressRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := VerifyEgress(context.Background(), srv.URL, []string{"US"})
	require.ErrorIs(t, err, domain.ErrAuthConfig)
}
