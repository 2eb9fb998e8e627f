package crypto

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/persistorai/auditledger/internal/config"
)

// keyCacheTTL is how long a cached key is valid before re-fetching from Vault.
const keyCacheTTL = 15 * time.Minute

// keyNamePattern restricts key names to a single safe path segment.
var keyNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// cachedKey stores a key alongside its fetch timestamp for TTL expiration.
type cachedKey struct {
	key       []byte
	fetchedAt time.Time
}

// VaultProvider reads ledger keys from the HashiCorp Vault KV v2 engine at
// secret/data/<mount>/<name>, field "key" (base64).
type VaultProvider struct {
	addr   string
	mount  string
	token  config.Secret
	client *http.Client
	cache  sync.Map
	group  singleflight.Group
}

// NewVaultProvider creates a VaultProvider for the given address, token and KV path prefix.
func NewVaultProvider(addr string, token config.Secret, mount string) *VaultProvider {
	if mount == "" {
		mount = "auditledger/keys"
	}

	return &VaultProvider{
		addr:  strings.TrimRight(addr, "/"),
		mount: strings.Trim(mount, "/"),
		token: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

// GetKey returns the named key, served from a short-lived cache. Concurrent
// misses for the same name share one Vault request.
func (p *VaultProvider) GetKey(ctx context.Context, name string) ([]byte, error) {
	if key, ok := p.cached(name); ok {
		return key, nil
	}

	val, err, _ := p.group.Do(name, func() (any, error) {
		if key, ok := p.cached(name); ok {
			return key, nil
		}

		k, err := p.fetchKey(ctx, name)
		if err != nil {
			return nil, err
		}

		p.cache.Store(name, cachedKey{key: k, fetchedAt: time.Now()})
		return k, nil
	})
	if err != nil {
		return nil, err
	}

	key, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("crypto/vault: unexpected singleflight result type %T", val)
	}

	return bytes.Clone(key), nil
}

// cached returns a copy of an unexpired cached key.
func (p *VaultProvider) cached(name string) ([]byte, bool) {
	v, ok := p.cache.Load(name)
	if !ok {
		return nil, false
	}

	entry, valid := v.(cachedKey)
	if !valid || time.Since(entry.fetchedAt) >= keyCacheTTL {
		p.cache.Delete(name)
		return nil, false
	}

	return bytes.Clone(entry.key), true
}

func (p *VaultProvider) fetchKey(ctx context.Context, name string) ([]byte, error) {
	if !keyNamePattern.MatchString(name) {
		return nil, fmt.Errorf("crypto/vault: invalid key name %q", name)
	}

	reqURL := fmt.Sprintf("%s/v1/secret/data/%s/%s", p.addr, p.mount, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("crypto/vault: create request: %w", err)
	}

	req.Header.Set("X-Vault-Token", p.token.Value())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crypto/vault: request failed: %w", err)
	}
	defer resp.Body.Close()

	limitedBody := io.LimitReader(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, limitedBody)
		return nil, fmt.Errorf("crypto/vault: key %q not found at secret/%s/%s", name, p.mount, name)
	}

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(limitedBody)
		if readErr != nil {
			return nil, fmt.Errorf("crypto/vault: unexpected status %d (failed to read body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("crypto/vault: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}

	if err := json.NewDecoder(limitedBody).Decode(&result); err != nil {
		return nil, fmt.Errorf("crypto/vault: decode response: %w", err)
	}

	b64Key := result.Data.Data["key"]
	if b64Key == "" {
		return nil, fmt.Errorf("crypto/vault: field \"key\" missing for %q", name)
	}

	key, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("crypto/vault: decode base64 key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("crypto/vault: key must be 32 bytes, got %d", len(key))
	}

	return key, nil
}
