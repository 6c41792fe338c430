package signals

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlsTarget(t *testing.T) (*httptest.Server, string, string) {
	t.Helper()
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	return ts, host, port
}

func TestTLSInspectUntrustedCertificate(t *testing.T) {
	_, host, port := tlsTarget(t)

	insp := NewTLSInspector(TLSConfig{Enabled: true, Port: port, Timeout: 2 * time.Second}, testDeps(t))
	info, err := insp.Inspect(context.Background(), host)
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "Acme Co", info.Issuer)
	assert.False(t, info.Trusted, "httptest certificates are self-signed")
	assert.False(t, info.ValidTo.IsZero())
}

func TestTLSInspectTrustedCertificate(t *testing.T) {
	ts, host, port := tlsTarget(t)

	pool := x509.NewCertPool()
	pool.AddCert(ts.Certificate())

	insp := NewTLSInspector(TLSConfig{Enabled: true, Port: port, Timeout: 2 * time.Second, RootCAs: pool}, testDeps(t))
	info, err := insp.Inspect(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, info.Trusted)
	assert.Equal(t, ts.Certificate().NotAfter.UTC(), info.ValidTo)
}

func TestTLSInspectFailureCachedAsEmpty(t *testing.T) {
	ts, host, port := tlsTarget(t)
	ts.Close()

	insp := NewTLSInspector(TLSConfig{Enabled: true, Port: port, Timeout: time.Second}, testDeps(t))
	ctx := context.Background()

	info, err := insp.Inspect(ctx, host)
	require.Error(t, err)
	assert.True(t, info.Empty())

	// Second call is a cache hit: empty info, no error.
	info, err = insp.Inspect(ctx, host)
	assert.NoError(t, err)
	assert.True(t, info.Empty())
	assert.Equal(t, "closed", insp.BreakerState())
}

func TestTLSInspectEmptyHost(t *testing.T) {
	insp := NewTLSInspector(TLSConfig{Enabled: true}, testDeps(t))
	info, err := insp.Inspect(context.Background(), "  ")
	assert.NoError(t, err)
	assert.True(t, info.Empty())
}
