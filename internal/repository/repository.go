// Package repository implements the registry HTTP client: signed
// package fetch, tarball fetch, public key retrieval, and RSA-SHA512
// envelope verification, with the transient-retry policy from §4B.
package repository

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	pkgerrors "github.com/packwright/core/internal/errors"
	"github.com/packwright/core/internal/state"
	"github.com/packwright/core/internal/wire"
)

const (
	maxRetries     = 2
	retryBackoff   = 100 * time.Millisecond
	headerETag     = "ETag"
	headerIfNone   = "If-None-Match"
	headerAuth     = "Authorization"
)

// FetchResult is the outcome of GetPackage.
type FetchResult struct {
	NotModified bool
	Body        []byte
	ETag        string
}

// Client is the registry HTTP client for one repository.
type Client struct {
	repo   state.RepoConfig
	http   *http.Client
}

// NewClient builds a Client for repo using the given HTTP client.
func NewClient(repo state.RepoConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{repo: repo, http: httpClient}
}

// GetPackage performs GET {repo.url}/packages/{name}, sending
// If-None-Match when etag is non-empty and returning NotModified on 304.
func (c *Client) GetPackage(ctx context.Context, name, etag string) (FetchResult, error) {
	url := fmt.Sprintf("%s/packages/%s", c.repo.URL, name)
	headers := map[string]string{}
	if etag != "" {
		headers[headerIfNone] = etag
	}

	resp, err := c.doWithRetry(ctx, url, headers)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return FetchResult{NotModified: true}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, pkgerrors.NewTransientError(url, resp.StatusCode, err)
	}
	return FetchResult{Body: body, ETag: resp.Header.Get(headerETag)}, nil
}

// GetTarball performs GET {repo.url}/tarballs/{name}-{version}.tar.
func (c *Client) GetTarball(ctx context.Context, name, version string) ([]byte, error) {
	url := fmt.Sprintf("%s/tarballs/%s-%s.tar", c.repo.URL, name, version)
	resp, err := c.doWithRetry(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.NewTransientError(url, resp.StatusCode, err)
	}
	return body, nil
}

// GetPublicKey performs GET {repo.url}/public_key, returning the
// PEM-encoded key bytes.
func (c *Client) GetPublicKey(ctx context.Context) ([]byte, error) {
	url := fmt.Sprintf("%s/public_key", c.repo.URL)
	resp, err := c.doWithRetry(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.NewTransientError(url, resp.StatusCode, err)
	}
	return body, nil
}

// doWithRetry performs an HTTP GET, retrying transient failures
// (connection errors and 5xx) up to maxRetries times with a fixed
// backoff. 4xx responses are returned immediately without retry. When
// repo.AuthKey is set, every request carries it in Authorization;
// otherwise the header is never sent.
func (c *Client) doWithRetry(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if c.repo.AuthKey != "" {
			req.Header.Set(headerAuth, c.repo.AuthKey)
		}

		slog.Debug("fetching", "url", url, "attempt", attempt)
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = pkgerrors.NewTransientError(url, 0, err)
			if attempt < maxRetries {
				slog.Debug("transient fetch error, retrying", "url", url, "error", err)
				if !sleepOrDone(ctx, retryBackoff) {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = pkgerrors.NewTransientError(url, resp.StatusCode, nil)
			if attempt < maxRetries {
				slog.Debug("server error, retrying", "url", url, "status", resp.StatusCode)
				if !sleepOrDone(ctx, retryBackoff) {
					return nil, ctx.Err()
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotModified {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, pkgerrors.NewPermanentError(url, resp.StatusCode, fmt.Errorf("%s", string(body)))
		}

		return resp, nil
	}
	return nil, lastErr
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Verify decodes a signed envelope and, unless repo.NoVerifySignature is
// set, checks its RSA-SHA512 signature against the repository's
// configured public key. It returns the inner payload bytes.
func Verify(repo state.RepoConfig, envelope []byte) ([]byte, error) {
	signed, err := wire.DecodeSigned(envelope)
	if err != nil {
		return nil, pkgerrors.NewBadSignatureError(repo.Name, err)
	}

	if repo.NoVerifySignature {
		return signed.Payload, nil
	}

	pub, err := parsePublicKey(repo.PublicKey)
	if err != nil {
		return nil, pkgerrors.NewBadSignatureError(repo.Name, err)
	}

	digest := sha512.Sum512(signed.Payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA512, digest[:], signed.Signature); err != nil {
		return nil, pkgerrors.NewBadSignatureError(repo.Name, err)
	}
	return signed.Payload, nil
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("repository public key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("repository public key is not an RSA key")
	}
	return rsaKey, nil
}

// DecodePackage decodes the protobuf package payload and, unless
// repo.NoVerifyOrigin is set, checks that its repository/name match the
// requested identity.
func DecodePackage(repo state.RepoConfig, payload []byte, wantName string) (wire.Package, error) {
	pkg, err := wire.DecodePackage(payload)
	if err != nil {
		return wire.Package{}, err
	}

	if repo.NoVerifyOrigin {
		return pkg, nil
	}
	if pkg.Repository != repo.Name || pkg.Name != wantName {
		return wire.Package{}, pkgerrors.NewOriginMismatchError(repo.Name, wantName, pkg.Repository, pkg.Name)
	}
	return pkg, nil
}
