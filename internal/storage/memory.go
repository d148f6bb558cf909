package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smurching/cloudnotes/internal/types"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore keeps objects in process memory. Signed URLs carry an
// HMAC-SHA256 signature over the key, operation and expiry.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	bucket  string
	secret  []byte
}

func NewMemoryStore(bucket string, secret []byte) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		bucket:  bucket,
		secret:  secret,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get %s: %w: %v", key, types.ErrStore, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, types.ErrNotFound)
	}

	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put %s: %w: %v", key, types.ErrStore, err)
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	m.objects[key] = memoryObject{data: stored, contentType: contentType, modified: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete %s: %w: %v", key, types.ErrStore, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, types.ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) SignedURL(key string, op types.Operation, ttl time.Duration) (types.SignedURL, error) {
	if op != types.OperationRead && op != types.OperationWrite {
		return types.SignedURL{}, fmt.Errorf("%w: unknown operation %q", types.ErrInvalidInput, op)
	}
	if ttl <= 0 {
		return types.SignedURL{}, fmt.Errorf("%w: url expiry must be positive", types.ErrInvalidInput)
	}

	expiresAt := time.Now().Add(ttl).Truncate(time.Second)
	query := url.Values{}
	query.Set("op", string(op))
	query.Set("expires", strconv.FormatInt(expiresAt.Unix(), 10))
	query.Set("signature", m.sign(key, op, expiresAt.Unix()))

	u := url.URL{
		Scheme:   "memory",
		Host:     m.bucket,
		Path:     "/" + key,
		RawQuery: query.Encode(),
	}

	return types.SignedURL{
		Key:       key,
		Operation: op,
		URL:       u.String(),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a URL issued by SignedURL and returns the key it grants
// access to.
func (m *MemoryStore) Verify(raw string, op types.Operation, now time.Time) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	if u.Host != m.bucket {
		return "", fmt.Errorf("%w: wrong bucket", types.ErrInvalidInput)
	}

	q := u.Query()
	if types.Operation(q.Get("op")) != op {
		return "", fmt.Errorf("%w: url not valid for %s", types.ErrInvalidInput, op)
	}

	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad expiry", types.ErrInvalidInput)
	}
	if now.Unix() > expires {
		return "", fmt.Errorf("%w: url expired", types.ErrInvalidInput)
	}

	key := strings.TrimPrefix(u.Path, "/")
	expected := m.sign(key, op, expires)
	if !hmac.Equal([]byte(expected), []byte(q.Get("signature"))) {
		return "", fmt.Errorf("%w: bad signature", types.ErrInvalidInput)
	}
	return key, nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w: %v", prefix, types.ErrStore, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []ObjectInfo
	for name, obj := range m.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		files = append(files, ObjectInfo{
			Name:     name,
			Size:     int64(len(obj.data)),
			Modified: obj.modified,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (m *MemoryStore) sign(key string, op types.Operation, expires int64) string {
	mac := hmac.New(sha256.New, m.secret)
	fmt.Fprintf(mac, "%s\n%s\n%s\n%d", m.bucket, op, key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
