package activitypub

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/deemkeen/vidodon/util"
)

func signedTestRequest(t *testing.T, keyId string, privatePem string, body []byte) *http.Request {
	t.Helper()

	req, err := http.NewRequest("POST", "https://remote.example.com/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", ComputeDigest(body))

	privateKey, err := ParsePrivateKey(privatePem)
	if err != nil {
		t.Fatalf("Failed to parse private key: %v", err)
	}

	if err := SignRequest(req, privateKey, keyId, nil); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}
	return req
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	keyId := "https://tube.example.com/accounts/alice#main-key"
	body := []byte(`{"type":"Follow"}`)

	req := signedTestRequest(t, keyId, keypair.Private, body)

	actorURI, err := VerifyRequest(req, keypair.Public)
	if err != nil {
		t.Fatalf("Verification failed: %v", err)
	}
	if actorURI != "https://tube.example.com/accounts/alice" {
		t.Errorf("Expected actor URI without key fragment, got %s", actorURI)
	}
}

func TestVerifyFailsWithWrongKey(t *testing.T) {
	signerKeys := util.GeneratePemKeypair()
	otherKeys := util.GeneratePemKeypair()
	body := []byte(`{"type":"Follow"}`)

	req := signedTestRequest(t, "https://tube.example.com/accounts/alice#main-key", signerKeys.Private, body)

	if _, err := VerifyRequest(req, otherKeys.Public); err == nil {
		t.Error("Verification should fail against a different public key")
	}
}

func TestVerifyFailsOnTamperedHeader(t *testing.T) {
	keypair := util.GeneratePemKeypair()
	body := []byte(`{"type":"Follow"}`)

	req := signedTestRequest(t, "https://tube.example.com/accounts/alice#main-key", keypair.Private, body)
	req.Header.Set("Date", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))

	if _, err := VerifyRequest(req, keypair.Public); err == nil {
		t.Error("Verification should fail after header tampering")
	}
}

func TestComputeDigest(t *testing.T) {
	digest := ComputeDigest([]byte("hello"))
	if digest != "SHA-256=LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=" {
		t.Errorf("Unexpected digest: %s", digest)
	}
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicKey("not a pem block"); err == nil {
		t.Error("Expected error for invalid PEM")
	}
}
