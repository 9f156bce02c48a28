// certificate.go: Self-signed certificate issuance and verification.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package aegis

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// CertificateVersion is the current certificate record version.
const CertificateVersion = 1

// DefaultCertificateValidity is the validity window applied when
// CertificateInfo.ValidFor is zero.
const DefaultCertificateValidity = 365 * 24 * time.Hour

// CertificateInfo describes the subject of a certificate to issue.
type CertificateInfo struct {
	CommonName   string        `json:"commonName"`
	Organization string        `json:"organization,omitempty"`
	Country      string        `json:"country,omitempty"`
	ValidFor     time.Duration `json:"-"`
	KeyUsages    []string      `json:"keyUsages,omitempty"`
}

// Certificate is a structured, signed record binding a public key to a
// subject for a validity window. The signature covers the canonical JSON
// serialization of every field except the signature itself.
type Certificate struct {
	SerialNumber string    `json:"serialNumber"`
	Issuer       string    `json:"issuer"`
	Subject      string    `json:"subject"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
	PublicKey    []byte    `json:"publicKey"` // PKIX DER
	KeyUsages    []string  `json:"keyUsages"`
	Version      int       `json:"version"`
	Signature    []byte    `json:"signature,omitempty"`
}

var defaultKeyUsages = []string{"digitalSignature", "keyEncipherment"}

// GenerateSelfSignedCertificate issues a certificate for the key pair's
// public key, signed by its own private key.
//
// The serial number is a fresh UUID; the validity window starts at the
// current time and spans info.ValidFor (default one year).
func GenerateSelfSignedCertificate(info CertificateInfo, kp *RSAKeyPair) (*Certificate, error) {
	if info.CommonName == "" {
		return nil, goerrors.New(ErrCodeCertificate, "common name cannot be empty")
	}
	if err := kp.Validate(); err != nil {
		return nil, err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(kp.Public)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeCertificate, "failed to marshal public key")
	}

	validFor := info.ValidFor
	if validFor <= 0 {
		validFor = DefaultCertificateValidity
	}
	usages := info.KeyUsages
	if len(usages) == 0 {
		usages = defaultKeyUsages
	}

	subject := formatDistinguishedName(info)
	now := timecache.CachedTime().UTC()
	cert := &Certificate{
		SerialNumber: uuid.NewString(),
		Issuer:       subject, // self-signed
		Subject:      subject,
		NotBefore:    now,
		NotAfter:     now.Add(validFor),
		PublicKey:    pubDER,
		KeyUsages:    usages,
		Version:      CertificateVersion,
	}

	sig, err := SignRSA(canonicalCertificateBytes(cert), kp.Private)
	if err != nil {
		return nil, err
	}
	cert.Signature = sig
	return cert, nil
}

// VerifyCertificate checks a certificate's validity window against the
// current time and verifies its signature.
//
// For self-signed certificates pass a nil issuerPub: the certificate's
// own embedded public key verifies the signature. Otherwise the supplied
// issuer key is used.
func VerifyCertificate(cert *Certificate, issuerPub *rsa.PublicKey) error {
	if cert == nil {
		return goerrors.New(ErrCodeCertificate, "certificate cannot be nil")
	}
	if len(cert.Signature) == 0 {
		return goerrors.New(ErrCodeCertificate, "certificate carries no signature")
	}

	now := timecache.CachedTime().UTC()
	if now.Before(cert.NotBefore) {
		return goerrors.New(ErrCodeCertificate, fmt.Sprintf("certificate not valid before %s", cert.NotBefore.Format(time.RFC3339)))
	}
	if now.After(cert.NotAfter) {
		return goerrors.New(ErrCodeCertificate, fmt.Sprintf("certificate expired at %s", cert.NotAfter.Format(time.RFC3339)))
	}

	if issuerPub == nil {
		parsed, err := x509.ParsePKIXPublicKey(cert.PublicKey)
		if err != nil {
			return goerrors.Wrap(err, ErrCodeCertificate, "failed to parse embedded public key")
		}
		rsaPub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return goerrors.New(ErrCodeCertificate, "embedded public key is not RSA")
		}
		issuerPub = rsaPub
	}

	return VerifyRSA(canonicalCertificateBytes(cert), cert.Signature, issuerPub)
}

// canonicalCertificateBytes serializes the certificate with its signature
// stripped. Struct field order makes the JSON encoding deterministic.
func canonicalCertificateBytes(cert *Certificate) []byte {
	unsigned := *cert
	unsigned.Signature = nil
	data, _ := json.Marshal(&unsigned)
	return data
}

func formatDistinguishedName(info CertificateInfo) string {
	dn := "CN=" + info.CommonName
	if info.Organization != "" {
		dn += ",O=" + info.Organization
	}
	if info.Country != "" {
		dn += ",C=" + info.Country
	}
	return dn
}
