package cache

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeEntry(t *testing.T) {
	entry := &Entry{
		Data:         []byte("response body"),
		ETag:         `"abc123"`,
		ServerDate:   1700000000000,
		LastModified: 1690000000000,
		TTL:          1700000100000,
		SoftTTL:      1700000050000,
		ResponseHeaders: map[string]string{
			"Content-Type":  "application/json",
			"Cache-Control": "max-age=60",
		},
	}

	key, decoded, err := DecodeEntry(EncodeEntry("http://origin/widget", entry))
	if err != nil {
		t.Fatal(err)
	}
	if key != "http://origin/widget" {
		t.Errorf("key = %q", key)
	}
	if !bytes.Equal(decoded.Data, entry.Data) {
		t.Errorf("data = %q", decoded.Data)
	}
	if decoded.ETag != entry.ETag {
		t.Errorf("etag = %q", decoded.ETag)
	}
	if decoded.ServerDate != entry.ServerDate ||
		decoded.LastModified != entry.LastModified ||
		decoded.TTL != entry.TTL ||
		decoded.SoftTTL != entry.SoftTTL {
		t.Error("timestamps did not round-trip")
	}
	if len(decoded.ResponseHeaders) != 2 ||
		decoded.ResponseHeaders["Content-Type"] != "application/json" ||
		decoded.ResponseHeaders["Cache-Control"] != "max-age=60" {
		t.Errorf("headers = %v", decoded.ResponseHeaders)
	}
}

func TestEncodeDecodeEntryWithoutValidators(t *testing.T) {
	entry := &Entry{Data: []byte{}, ResponseHeaders: map[string]string{}}
	key, decoded, err := DecodeEntry(EncodeEntry("k", entry))
	if err != nil {
		t.Fatal(err)
	}
	if key != "k" || decoded.ETag != "" || len(decoded.Data) != 0 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestDecodeEntryRejectsBadMagic(t *testing.T) {
	b := EncodeEntry("k", &Entry{})
	b[0] ^= 0xff
	if _, _, err := DecodeEntry(b); err == nil {
		t.Fatal("expected a bad magic error")
	}
}

func TestDecodeEntryRejectsTruncatedFile(t *testing.T) {
	b := EncodeEntry("http://origin/widget", &Entry{Data: []byte("body")})
	if _, _, err := DecodeEntry(b[:10]); err == nil {
		t.Fatal("expected a truncation error")
	}
}

func TestEntryFreshnessPredicates(t *testing.T) {
	fresh := &Entry{TTL: farFuture(), SoftTTL: farFuture()}
	if fresh.IsExpired() || fresh.RefreshNeeded() {
		t.Error("future TTLs must be fresh")
	}
	stale := &Entry{TTL: farFuture(), SoftTTL: 1}
	if stale.IsExpired() || !stale.RefreshNeeded() {
		t.Error("past soft TTL must need refresh without being expired")
	}
	expired := &Entry{TTL: 1, SoftTTL: 1}
	if !expired.IsExpired() || !expired.RefreshNeeded() {
		t.Error("past TTL must be expired")
	}
}

func farFuture() int64 {
	return 4102444800000 // 2100-01-01
}
