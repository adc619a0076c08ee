// Package objstore uploads run artifacts to an S3-compatible bucket
// (R2, MinIO, S3) with SigV4-signed PUTs.
package objstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	sigV4Service   = "s3"
	signedHeaders  = "host;x-amz-content-sha256;x-amz-date"
)

var ErrBadKey = errors.New("objstore: empty or escaping object key")

type Config struct {
	Endpoint        string
	Bucket          string
	Region          string // "auto" for R2
	AccessKeyID     string
	SecretAccessKey string
}

type Client struct {
	endpoint string
	cfg      Config
	http     *http.Client
	now      func() time.Time
}

func New(cfg Config) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKeyID = strings.TrimSpace(cfg.AccessKeyID)
	cfg.SecretAccessKey = strings.TrimSpace(cfg.SecretAccessKey)
	if cfg.Region = strings.TrimSpace(cfg.Region); cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("objstore: endpoint, bucket, access key and secret key are required")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		cfg.Endpoint = "https://" + cfg.Endpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("objstore: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("objstore: invalid endpoint %s", cfg.Endpoint)
	}
	return &Client{
		endpoint: strings.TrimRight(u.String(), "/"),
		cfg:      cfg,
		http:     &http.Client{Timeout: 2 * time.Minute},
		now:      time.Now,
	}, nil
}

// PutFile uploads localPath as key.
func (c *Client) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("objstore: %s is a directory", localPath)
	}
	return c.Put(ctx, key, f, st.Size())
}

// Put uploads size bytes of body as key. body is read twice: once to hash
// the payload, once to send it.
func (c *Client) Put(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	key = NormalizeKey(key)
	if key == "" {
		return ErrBadKey
	}
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return err
	}
	payloadHash := hex.EncodeToString(h.Sum(nil))
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}

	canonicalURI := "/" + c.cfg.Bucket + "/" + escapePath(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint+canonicalURI, io.NopCloser(body))
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	c.sign(req, canonicalURI, payloadHash)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return fmt.Errorf("objstore: put %s: status %d: %s", key, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (c *Client) sign(req *http.Request, canonicalURI, payloadHash string) {
	now := c.now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	host := req.URL.Host

	req.Header.Set("x-amz-content-sha256", payloadHash)
	req.Header.Set("x-amz-date", amzDate)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		"",
		"host:" + host + "\nx-amz-content-sha256:" + payloadHash + "\nx-amz-date:" + amzDate + "\n",
		signedHeaders,
		payloadHash,
	}, "\n")
	scope := strings.Join([]string{dateStamp, c.cfg.Region, sigV4Service, "aws4_request"}, "/")
	sum := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{sigV4Algorithm, amzDate, scope, hex.EncodeToString(sum[:])}, "\n")

	key := signingKey(c.cfg.SecretAccessKey, dateStamp, c.cfg.Region, sigV4Service)
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, c.cfg.AccessKeyID, scope, signedHeaders, signature))
}

// NormalizeKey turns key into a clean relative object key, or "" when it
// is empty or climbs out of the bucket.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return ""
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}

func signingKey(secret, date, region, service string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(service))
	return hmacSHA256(k, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write(data)
	return h.Sum(nil)
}
