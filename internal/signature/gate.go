// Package signature implements the HMAC verification and JSON decoding
// every inbound LINE webhook passes through first (spec §4.1, C1).
// At-most-once delivery itself is enforced downstream by
// convo.Store.AppendUser's atomic insert, not here.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/anna0613/linebot-control-plane/internal/apperr"
	"github.com/anna0613/linebot-control-plane/pkg/lineevents"
)

// Verify checks body against sig using HMAC-SHA256(secret, body),
// constant-time compared, per spec §4.1. An empty body is LINE's
// verification probe and is not an error — ok=true, empty=true.
func Verify(body []byte, sig, secret string) (ok bool, empty bool) {
	if len(body) == 0 {
		return true, true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig)), false
}

// ParseAndVerify verifies the signature, then parses the body into typed
// events. Returns apperr.InvalidSignature on mismatch, apperr.MalformedBody
// on unparseable JSON. An empty body returns (nil, nil) and callers must
// respond 200 without further work.
func ParseAndVerify(body []byte, sig, secret string) ([]lineevents.Event, error) {
	ok, empty := Verify(body, sig, secret)
	if empty {
		return nil, nil
	}
	if !ok {
		return nil, apperr.InvalidSignature
	}
	events, err := lineevents.Parse(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.MalformedBody, err)
	}
	return events, nil
}
