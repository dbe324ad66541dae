// Package tls generates development certificates so the server can run
// HTTPS without externally provisioned key material.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// CertOptions tunes the generated certificate. Zero values fall back to
// defaults suitable for local development.
type CertOptions struct {
	// Organization appears in the certificate subject.
	Organization string
	// ValidFor is the certificate lifetime from the moment of generation.
	ValidFor time.Duration
}

const (
	defaultOrganization = "FlowSentry Dev"
	defaultValidFor     = 365 * 24 * time.Hour
)

// GenerateSelfSignedCert creates an ECDSA P-256 key pair and a self-signed
// server certificate valid for the given hostnames and IPs, writing both to
// the provided paths in PEM format. Existing files are overwritten.
func GenerateSelfSignedCert(certPath, keyPath string, hosts []string, opts CertOptions) error {
	if len(hosts) == 0 {
		return fmt.Errorf("no hostnames or IPs to certify")
	}
	if opts.Organization == "" {
		opts.Organization = defaultOrganization
	}
	if opts.ValidFor <= 0 {
		opts.ValidFor = defaultValidFor
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	if err := writePEM(certPath, "CERTIFICATE", derBytes); err != nil {
		return err
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	return writePEM(keyPath, "EC PRIVATE KEY", keyBytes)
}

func writePEM(path, blockType string, der []byte) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
