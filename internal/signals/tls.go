package signals

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
)

const (
	GathererTLS       = "tls"
	DefaultTLSTTL     = time.Hour
	DefaultTLSTimeout = 5 * time.Second
)

// TLSConfig configures certificate inspection.
type TLSConfig struct {
	Enabled bool
	Port    string // default "443"
	Timeout time.Duration
	TTL     time.Duration
	// RootCAs overrides the system pool, used by tests.
	RootCAs *x509.CertPool
}

// TLSInspector reads the leaf certificate a host presents.
type TLSInspector struct {
	base
	enabled bool
	port    string
	roots   *x509.CertPool
}

func NewTLSInspector(cfg TLSConfig, deps Deps) *TLSInspector {
	if cfg.Port == "" {
		cfg.Port = "443"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTLSTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTLSTTL
	}
	t := &TLSInspector{
		base:    newBase(GathererTLS, cfg.TTL, cfg.Timeout, deps),
		enabled: cfg.Enabled,
		port:    cfg.Port,
		roots:   cfg.RootCAs,
	}
	// Handshake failures are per host, they never open the circuit.
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         GathererTLS,
		IsSuccessful: func(error) bool { return true },
	})
	return t
}

func (t *TLSInspector) Enabled() bool { return t.enabled }

// Inspect returns certificate details for host. Failed handshakes are cached
// as an empty TLSInfo and reported with their error kind.
func (t *TLSInspector) Inspect(ctx context.Context, host string) (*domain.TLSInfo, error) {
	if !t.enabled {
		return nil, notConfigured(t.name)
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return &domain.TLSInfo{}, nil
	}

	if info, ok := cached[*domain.TLSInfo](ctx, &t.base, host); ok {
		return info, nil
	}

	info, err := execute(ctx, &t.base, func(ctx context.Context) (*domain.TLSInfo, error) {
		return t.handshake(ctx, host)
	})
	if err != nil {
		t.store(ctx, host, &domain.TLSInfo{})
		return &domain.TLSInfo{}, err
	}

	t.store(ctx, host, info)
	return info, nil
}

func (t *TLSInspector) handshake(ctx context.Context, host string) (*domain.TLSInfo, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: t.timeout},
		Config: &tls.Config{
			ServerName: host,
			RootCAs:    t.roots,
			MinVersion: tls.VersionTLS12,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, t.port))
	if err != nil {
		// An untrusted or expired chain still tells us who issued it.
		var verr *tls.CertificateVerificationError
		if errors.As(err, &verr) && len(verr.UnverifiedCertificates) > 0 {
			info := certInfo(verr.UnverifiedCertificates[0])
			info.Trusted = false
			return info, nil
		}
		return nil, transportError(t.name, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return &domain.TLSInfo{}, nil
	}
	info := certInfo(state.PeerCertificates[0])
	info.Trusted = true
	return info, nil
}

// certInfo prefers the issuer organisation, then its common name.
func certInfo(cert *x509.Certificate) *domain.TLSInfo {
	issuer := cert.Issuer.CommonName
	if len(cert.Issuer.Organization) > 0 && cert.Issuer.Organization[0] != "" {
		issuer = cert.Issuer.Organization[0]
	}
	return &domain.TLSInfo{
		Issuer:    issuer,
		ValidFrom: cert.NotBefore.UTC(),
		ValidTo:   cert.NotAfter.UTC(),
	}
}
