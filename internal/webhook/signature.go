package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries Mercado Pago's notification signature.
const SignatureHeader = "x-signature"

var (
	ErrSignatureMissing   = errors.New("signature header missing")
	ErrSignatureMalformed = errors.New("signature header malformed")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// Verifier checks x-signature headers of the form "ts=<timestamp>,v1=<hex>"
// against an HMAC-SHA256 of "id:<paymentId>;ts:<timestamp>;".
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the shared webhook secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns nil only when header is a valid signature for paymentID.
func (v *Verifier) Verify(paymentID, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrSignatureMissing
	}

	ts, sig, err := parseHeader(header)
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureMalformed
	}
	if len(v.secret) == 0 {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(got, v.mac(paymentID, ts)) {
		return ErrSignatureMismatch
	}
	return nil
}

func (v *Verifier) mac(paymentID, ts string) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write([]byte(Manifest(paymentID, ts)))
	return m.Sum(nil)
}

// Manifest is the signed string. The payment id is used exactly as it
// arrives, so ids differing only in case carry different signatures.
func Manifest(paymentID, ts string) string {
	return "id:" + paymentID + ";ts:" + ts + ";"
}

// Sign produces an x-signature header value. Used by tests and the CLI to
// simulate notifications.
func Sign(secret, paymentID, ts string) string {
	v := NewVerifier(secret)
	return "ts=" + ts + ",v1=" + hex.EncodeToString(v.mac(paymentID, ts))
}

func parseHeader(header string) (ts, sig string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			sig = strings.TrimSpace(value)
		}
	}
	if ts == "" || sig == "" {
		return "", "", ErrSignatureMalformed
	}
	return ts, sig, nil
}
