package webhook

import (
	"testing"
	"time"
)

func TestVerifySlackSignature(t *testing.T) {
	secret := "shh-its-a-secret"
	body := `{"type":"event_callback"}`
	now := time.Unix(1700000000, 0)
	ts := "1700000000"
	sig := computeSlackSignature(secret, ts, body)

	if err := VerifySlackSignature(secret, ts, body, sig, now); err != nil {
		t.Fatalf("expected valid signature to verify, got %v", err)
	}
}

func TestVerifySlackSignatureRejectsTamperedBody(t *testing.T) {
	secret := "shh-its-a-secret"
	ts := "1700000000"
	now := time.Unix(1700000000, 0)
	sig := computeSlackSignature(secret, ts, `{"a":1}`)

	if err := VerifySlackSignature(secret, ts, `{"a":2}`, sig, now); err == nil {
		t.Fatal("expected tampered body to fail verification")
	}
}

func TestVerifySlackSignatureRejectsStaleTimestamp(t *testing.T) {
	secret := "shh-its-a-secret"
	body := "payload"
	ts := "1700000000"
	sig := computeSlackSignature(secret, ts, body)
	farFuture := time.Unix(1700000000+301, 0)

	if err := VerifySlackSignature(secret, ts, body, sig, farFuture); err == nil {
		t.Fatal("expected stale timestamp to fail verification")
	}
}

func TestVerifySlackSignatureRejectsMissingPrefix(t *testing.T) {
	secret := "shh-its-a-secret"
	body := "payload"
	ts := "1700000000"
	now := time.Unix(1700000000, 0)

	if err := VerifySlackSignature(secret, ts, body, "deadbeef", now); err == nil {
		t.Fatal("expected missing v0= prefix to fail verification")
	}
}
