package mcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerClientID  = "x-client-id"
	headerTS        = "x-ts"
	headerNonce     = "x-nonce"
	headerSignature = "x-signature"

	clockSkew = 5 * time.Minute
)

// canonicalString is what clients sign: timestamp, method, path, client
// id, nonce and the raw body, newline separated.
func canonicalString(ts, method, pathname, clientID, nonce string, body []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" +
		strings.TrimSpace(clientID) + "\n" + strings.TrimSpace(nonce) + "\n" + string(body)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign returns the headers a client sends with body.
func Sign(secret []byte, method, pathname, clientID, nonce string, body []byte, now time.Time) http.Header {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	h := http.Header{}
	h.Set(headerClientID, clientID)
	h.Set(headerTS, ts)
	h.Set(headerNonce, nonce)
	h.Set(headerSignature, signHMAC(secret, canonicalString(ts, method, pathname, clientID, nonce, body)))
	return h
}

type authResult struct {
	ClientID string
	Nonce    string
	Status   int
	Message  string
}

func verifyHMAC(r *http.Request, body, secret []byte, now time.Time) authResult {
	clientID := strings.TrimSpace(r.Header.Get(headerClientID))
	tsStr := strings.TrimSpace(r.Header.Get(headerTS))
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(headerSignature)))
	switch {
	case clientID == "":
		return authResult{Status: http.StatusUnauthorized, Message: "missing " + headerClientID}
	case tsStr == "":
		return authResult{Status: http.StatusUnauthorized, Message: "missing " + headerTS}
	case nonce == "":
		return authResult{Status: http.StatusUnauthorized, Message: "missing " + headerNonce}
	case sig == "":
		return authResult{Status: http.StatusUnauthorized, Message: "missing " + headerSignature}
	}

	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return authResult{Status: http.StatusUnauthorized, Message: "bad " + headerTS}
	}
	if d := now.UnixMilli() - tsMS; d > clockSkew.Milliseconds() || d < -clockSkew.Milliseconds() {
		return authResult{Status: http.StatusUnauthorized, Message: headerTS + " outside window"}
	}
	want := signHMAC(secret, canonicalString(tsStr, r.Method, r.URL.Path, clientID, nonce, body))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return authResult{Status: http.StatusUnauthorized, Message: "bad signature"}
	}
	return authResult{ClientID: clientID, Nonce: nonce}
}
