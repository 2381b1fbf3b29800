package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/anna0613/linebot-control-plane/internal/apperr"
	"github.com/anna0613/linebot-control-plane/pkg/lineevents"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyValidSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	secret := "shh"
	ok, empty := Verify(body, sign(body, secret), secret)
	if !ok || empty {
		t.Errorf("Verify = (%v, %v), want (true, false)", ok, empty)
	}
}

func TestVerifyInvalidSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	ok, empty := Verify(body, "bogus", "shh")
	if ok || empty {
		t.Errorf("Verify = (%v, %v), want (false, false)", ok, empty)
	}
}

func TestVerifyEmptyBodyIsProbe(t *testing.T) {
	ok, empty := Verify(nil, "", "shh")
	if !ok || !empty {
		t.Errorf("Verify(empty) = (%v, %v), want (true, true)", ok, empty)
	}
}

func TestParseAndVerifyEmptyBody(t *testing.T) {
	events, err := ParseAndVerify(nil, "", "shh")
	if err != nil || events != nil {
		t.Errorf("ParseAndVerify(empty) = (%v, %v), want (nil, nil)", events, err)
	}
}

func TestParseAndVerifyBadSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	_, err := ParseAndVerify(body, "bogus", "shh")
	if !errors.Is(err, apperr.InvalidSignature) {
		t.Errorf("err = %v, want apperr.InvalidSignature", err)
	}
}

func TestParseAndVerifyMalformedBody(t *testing.T) {
	body := []byte(`not json`)
	_, err := ParseAndVerify(body, sign(body, "shh"), "shh")
	if !errors.Is(err, apperr.MalformedBody) {
		t.Errorf("err = %v, want apperr.MalformedBody", err)
	}
}

func TestParseAndVerifyValid(t *testing.T) {
	body := []byte(`{"events":[{"type":"follow","source":{"type":"user","userId":"U1"}}]}`)
	secret := "shh"
	events, err := ParseAndVerify(body, sign(body, secret), secret)
	if err != nil {
		t.Fatalf("ParseAndVerify: %v", err)
	}
	if len(events) != 1 || events[0].Type != lineevents.EventFollow {
		t.Errorf("unexpected events: %+v", events)
	}
}
