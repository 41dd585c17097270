package httpclient

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// A minimal self-signed certificate, only used to exercise the PEM parsing
// path; it is never presented to a live connection.
const testCACert = `-----BEGIN CERTIFICATE-----
MIIBeDCCAR+gAwIBAgIUKyhEHI7YIMDKtIhf41jxEM+pGcgwCgYIKoZIzj0EAwIw
EjEQMA4GA1UECgwHQWNtZSBDbzAeFw0yNjA4MDIwMTUwNDlaFw0zNjA3MzAwMTUw
NDlaMBIxEDAOBgNVBAoMB0FjbWUgQ28wWTATBgcqhkjOPQIBBggqhkjOPQMBBwNC
AARomBxKwbK1FWM+jlDHHF3D9Q9AnY37TgHRt5mHU259J9OQ8pxP/Ew9f0p1jLGp
WHt1b3O0Gk17+EE6c2BrtBato1MwUTAdBgNVHQ4EFgQUbpFXs9At2n7YY4VmyUAt
rQHcDGEwHwYDVR0jBBgwFoAUbpFXs9At2n7YY4VmyUAtrQHcDGEwDwYDVR0TAQH/
BAUwAwEB/zAKBggqhkjOPQQDAgNHADBEAiAFnnjA5X5DAHKiOvZRIX6nVIwpEWyH
OF9uisIO6JCZugIgfYATW+vSjaZ2nVINtPMVx1sUnsU/JVhUmeaONq982hw=
-----END CERTIFICATE-----`

func TestConfigureTLS_NilConfig(t *testing.T) {
	transport, err := ConfigureTLS(nil)
	if err != nil {
		t.Fatalf("ConfigureTLS(nil): %v", err)
	}
	if transport.TLSClientConfig == nil {
		t.Fatal("expected a TLS client config on the transport")
	}
	if transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("nil config should not skip verification")
	}
}

func TestConfigureTLS_CustomCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte(testCACert), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	transport, err := ConfigureTLS(&TLSConfig{CACertificate: path})
	if err != nil {
		t.Fatalf("ConfigureTLS: %v", err)
	}
	if transport.TLSClientConfig.RootCAs == nil {
		t.Error("expected RootCAs to be populated from the CA file")
	}
}

func TestConfigureTLS_MissingCAFile(t *testing.T) {
	if _, err := ConfigureTLS(&TLSConfig{CACertificate: "/nonexistent/ca.pem"}); err == nil {
		t.Error("expected error for a missing CA file")
	}
}

func TestConfigureTLS_InvalidCAFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-cert.pem")
	if err := os.WriteFile(path, []byte("not PEM data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ConfigureTLS(&TLSConfig{CACertificate: path}); err == nil {
		t.Error("expected error for an unparsable CA file")
	}
}

func TestWithTLSConfig_SetsTransportPreservingTimeout(t *testing.T) {
	client := New(
		WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		WithTLSConfig(&TLSConfig{InsecureSkipVerify: true}),
	)

	transport, ok := client.client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport type = %T, want *http.Transport", client.client.Transport)
	}
	if !transport.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify to be applied to the transport")
	}
	if client.client.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want the client's 30s preserved", client.client.Timeout)
	}
}

func TestWithTLSConfig_NilIsNoOp(t *testing.T) {
	client := New(WithTLSConfig(nil))
	if client.client.Transport != nil {
		t.Error("nil TLS config should leave the default transport untouched")
	}
}
