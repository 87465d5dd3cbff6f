package certstore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yndnr/sockhttp/internal/core/domain"
)

// File extensions of the certificate and key files.
const (
	CertExt = ".crt"
	KeyExt  = ".key"
)

// DefaultDir returns <user config dir>/sockhttp/httplistener.
// It falls back to $HOME/.config when the config dir is unknown.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sockhttp", "httplistener")
}

// Locate returns the certificate and key paths for port under dir.
func Locate(dir string, port int) (certFile, keyFile string) {
	name := strconv.Itoa(port)
	return filepath.Join(dir, name+CertExt), filepath.Join(dir, name+KeyExt)
}

// Load reads the key pair of port from dir.
// Any failure is wrapped in domain.ErrCertificateLoad.
func Load(dir string, port int) (*tls.Certificate, error) {
	certFile, keyFile := Locate(dir, port)
	return loadPair(certFile, keyFile)
}

func loadPair(certFile, keyFile string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, domain.ErrCertificateLoad.WithDetails(certFile).WithCause(err)
	}
	return &cert, nil
}

// GenerateSelfSigned writes a self-signed ECDSA pair for port into dir,
// valid for hosts (DNS names or IP addresses) for the given duration.
func GenerateSelfSigned(dir string, port int, hosts []string, validFor time.Duration) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("certstore: create dir %s: %w", dir, err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("certstore: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return fmt.Errorf("certstore: serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"sockhttp"},
			CommonName:   "sockhttp port " + strconv.Itoa(port),
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("certstore: create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("certstore: marshal key: %w", err)
	}

	certFile, keyFile := Locate(dir, port)
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0644); err != nil {
		return fmt.Errorf("certstore: write %s: %w", certFile, err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		return fmt.Errorf("certstore: write %s: %w", keyFile, err)
	}
	return nil
}
