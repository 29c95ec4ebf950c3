// Package webhook implements the inbound-webhook authentication boundary
// spec.md §6 describes (bot command/interaction callbacks are out of
// scope; only the signature-verification contract is a core concern).
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxClockSkew is the largest allowed gap between a request's timestamp
// and local time, per spec.md §6.
const MaxClockSkew = 300 * time.Second

// VerifySlackSignature checks an inbound SL request's `X-Slack-Signature`
// header against `v0=HMAC-SHA256(v0:<timestamp>:<raw_body>, signingSecret)`
// in constant time, rejecting requests whose timestamp is more than
// MaxClockSkew away from now, per spec.md §6 and §8's testable property.
func VerifySlackSignature(signingSecret, timestampHeader, body, signatureHeader string, now time.Time) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("webhook: invalid timestamp %q: %w", timestampHeader, err)
	}
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return fmt.Errorf("webhook: timestamp %d outside %s clock skew", ts, MaxClockSkew)
	}

	expected := computeSlackSignature(signingSecret, timestampHeader, body)
	if !strings.HasPrefix(signatureHeader, "v0=") {
		return fmt.Errorf("webhook: signature missing v0= prefix")
	}
	if subtle.ConstantTimeCompare([]byte(signatureHeader), []byte(expected)) != 1 {
		return fmt.Errorf("webhook: signature mismatch")
	}
	return nil
}

func computeSlackSignature(signingSecret, timestamp, body string) string {
	base := "v0:" + timestamp + ":" + body
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(base))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
