package quiver

import (
	"net/http"
	"testing"
	"time"
)

func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func TestParseCacheControlDirectives(t *testing.T) {
	cc := ParseCacheControl(`public, max-age=60, stale-while-revalidate="30"`)
	if !cc.Has("public") {
		t.Error("public directive missing")
	}
	if val, _ := cc.Get("max-age"); val != "60" {
		t.Errorf("max-age = %q, want 60", val)
	}
	if val, _ := cc.Get("stale-while-revalidate"); val != "30" {
		t.Errorf("stale-while-revalidate = %q, want unquoted 30", val)
	}
	if cc.Has("no-cache") {
		t.Error("unexpected no-cache directive")
	}
}

func TestParseCacheHeaders(t *testing.T) {
	now := time.Now()
	date := now.Truncate(time.Second)
	dateMs := date.UnixMilli()

	tests := []struct {
		name        string
		headers     map[string]string
		wantNil     bool
		wantSoftTTL int64
		wantTTL     int64
	}{
		{
			name: "max-age only",
			headers: map[string]string{
				"Date":          httpDate(date),
				"Cache-Control": "max-age=60",
			},
			wantSoftTTL: dateMs + 60_000,
			wantTTL:     dateMs + 60_000,
		},
		{
			name: "max-age with stale-while-revalidate",
			headers: map[string]string{
				"Date":          httpDate(date),
				"Cache-Control": "max-age=60, stale-while-revalidate=30",
			},
			wantSoftTTL: dateMs + 60_000,
			wantTTL:     dateMs + 90_000,
		},
		{
			name: "unknown directives are ignored",
			headers: map[string]string{
				"Date":          httpDate(date),
				"Cache-Control": "max-age=60, stale-while-revalidate=30, must-revalidate",
			},
			wantSoftTTL: dateMs + 60_000,
			wantTTL:     dateMs + 90_000,
		},
		{
			name: "expires only",
			headers: map[string]string{
				"Date":    httpDate(date),
				"Expires": httpDate(date.Add(2 * time.Minute)),
			},
			wantSoftTTL: dateMs + 120_000,
			wantTTL:     dateMs + 120_000,
		},
		{
			name: "cache-control takes precedence over expires",
			headers: map[string]string{
				"Date":          httpDate(date),
				"Expires":       httpDate(date.Add(time.Hour)),
				"Cache-Control": "max-age=60",
			},
			wantSoftTTL: dateMs + 60_000,
			wantTTL:     dateMs + 60_000,
		},
		{
			name: "no-cache",
			headers: map[string]string{
				"Date":          httpDate(date),
				"Cache-Control": "no-cache",
			},
			wantNil: true,
		},
		{
			name: "no-store",
			headers: map[string]string{
				"Date":          httpDate(date),
				"Cache-Control": "max-age=60, no-store",
			},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := ParseCacheHeaders(&NetworkResponse{
				StatusCode: 200,
				Data:       []byte("body"),
				Headers:    tt.headers,
			})
			if tt.wantNil {
				if entry != nil {
					t.Fatal("expected uncacheable response")
				}
				return
			}
			if entry == nil {
				t.Fatal("expected a cache entry")
			}
			if entry.SoftTTL != tt.wantSoftTTL {
				t.Errorf("SoftTTL = %d, want %d", entry.SoftTTL, tt.wantSoftTTL)
			}
			if entry.TTL != tt.wantTTL {
				t.Errorf("TTL = %d, want %d", entry.TTL, tt.wantTTL)
			}
			if string(entry.Data) != "body" {
				t.Errorf("Data = %q", entry.Data)
			}
		})
	}
}

func TestParseCacheHeadersValidators(t *testing.T) {
	date := time.Now().Truncate(time.Second)
	modified := date.Add(-time.Hour)
	entry := ParseCacheHeaders(&NetworkResponse{
		Headers: map[string]string{
			"Date":          httpDate(date),
			"ETag":          `"v1"`,
			"Last-Modified": httpDate(modified),
			"Cache-Control": "max-age=1",
		},
	})
	if entry == nil {
		t.Fatal("expected a cache entry")
	}
	if entry.ETag != `"v1"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if entry.LastModified != modified.UnixMilli() {
		t.Errorf("LastModified = %d, want %d", entry.LastModified, modified.UnixMilli())
	}
	if entry.ServerDate != date.UnixMilli() {
		t.Errorf("ServerDate = %d, want %d", entry.ServerDate, date.UnixMilli())
	}
}

func TestHeaderValueIsCaseInsensitive(t *testing.T) {
	headers := map[string]string{"etag": `"x"`}
	if got := headerValue(headers, "ETag"); got != `"x"` {
		t.Errorf("headerValue = %q", got)
	}
}
