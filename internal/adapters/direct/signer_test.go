package direct

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestNewSignerFromFileReturnsNilWithoutCredentials(t *testing.T) {
	s, err := NewSignerFromFile("", "")
	require.NoError(t, err)
	require.Nil(t, s)
	require.False(t, s.Enabled())
}

func TestSignRequestSetsHeaders(t *testing.T) {
	path := writeTestKey(t)
	s, err := NewSignerFromFile("key-123", path)
	require.NoError(t, err)
	require.True(t, s.Enabled())

	req, err := http.NewRequest(http.MethodPost, "https://example.test/orders", nil)
	require.NoError(t, err)
	require.NoError(t, s.SignRequest(req))

	require.Equal(t, "key-123", req.Header.Get("DIRECT-ACCESS-KEY"))
	require.NotEmpty(t, req.Header.Get("DIRECT-ACCESS-SIGNATURE"))
	require.NotEmpty(t, req.Header.Get("DIRECT-ACCESS-TIMESTAMP"))
}

func TestHeadersForWSDial(t *testing.T) {
	path := writeTestKey(t)
	s, err := NewSignerFromFile("key-123", path)
	require.NoError(t, err)

	h := s.Headers("GET", "/trade-api/ws/v2")
	require.Equal(t, "key-123", h.Get("DIRECT-ACCESS-KEY"))
	require.NotEmpty(t, h.Get("DIRECT-ACCESS-SIGNATURE"))
}

func TestNilSignerHeadersReturnsNil(t *testing.T) {
	var s *Signer
	require.Nil(t, s.Headers("GET", "/x"))
	require.NoError(t, s.SignRequest(&http.Request{Header: http.Header{}}))
}
