package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	configpkg "rdpso/simulator/internal/config"
	"rdpso/simulator/internal/logging"
)

func generateSelfSignedCert(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certFile, keyFile
}

func TestLoadTLSCredentialsFailsWithBadPaths(t *testing.T) {
	if _, err := loadTLSCredentials("missing-cert", "missing-key"); err == nil {
		t.Fatal("expected error for missing files")
	}
}

func TestConfigureGRPCSecurityTLS(t *testing.T) {
	certFile, keyFile := generateSelfSignedCert(t)
	cfg := &configpkg.Config{TLSCertPath: certFile, TLSKeyPath: keyFile, AdminToken: "hunter2", MaxPayloadBytes: 1 << 16}
	opts, err := configureGRPCSecurity(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("configureGRPCSecurity: %v", err)
	}
	//1.- Payload cap, both interceptors and the TLS credentials.
	if len(opts) != 4 {
		t.Fatalf("expected 4 grpc options, got %d", len(opts))
	}
}

func TestConfigureGRPCSecurityPlaintext(t *testing.T) {
	cfg := &configpkg.Config{MaxPayloadBytes: 1 << 16}
	opts, err := configureGRPCSecurity(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("configureGRPCSecurity: %v", err)
	}
	if len(opts) != 3 {
		t.Fatalf("expected 3 grpc options, got %d", len(opts))
	}
	if _, err := configureGRPCSecurity(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
