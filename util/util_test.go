package util

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func TestGeneratePemKeypair(t *testing.T) {
	keypair := GeneratePemKeypair()

	if keypair.Private == "" || keypair.Public == "" {
		t.Fatal("Keypair should not be empty")
	}

	block, _ := pem.Decode([]byte(keypair.Private))
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		t.Fatal("Private key should be a PKCS1 PEM block")
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		t.Errorf("Private key should parse: %v", err)
	}

	pubBlock, _ := pem.Decode([]byte(keypair.Public))
	if pubBlock == nil || pubBlock.Type != "PUBLIC KEY" {
		t.Fatal("Public key should be a PKIX PEM block")
	}
	if _, err := x509.ParsePKIXPublicKey(pubBlock.Bytes); err != nil {
		t.Errorf("Public key should parse: %v", err)
	}
}

func TestGeneratePemKeypairIsUnique(t *testing.T) {
	a := GeneratePemKeypair()
	b := GeneratePemKeypair()
	if a.Private == b.Private {
		t.Error("Two generated keypairs should differ")
	}
}

func TestGetNameAndVersion(t *testing.T) {
	nv := GetNameAndVersion()
	if !strings.HasPrefix(nv, Name) {
		t.Errorf("Expected prefix %q, got %q", Name, nv)
	}
	if GetVersion() == "" {
		t.Error("Version should not be empty")
	}
}
