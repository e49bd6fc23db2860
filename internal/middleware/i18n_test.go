package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "en")
				r.Header.Set("Accept-Language", "ja")
			},
			want: "en",
		},
		{
			name: "accept-language japanese",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "ja,en;q=0.8")
			},
			want: "ja",
		},
		{
			name: "accept-language english region variant",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-US,en;q=0.9")
			},
			want: "en",
		},
		{
			name:     "configured fallback",
			fallback: "en",
			want:     "en",
		},
		{
			name: "default to japanese",
			want: "ja",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(r)
			}
			if got := detectLocale(r, tc.fallback); got != tc.want {
				t.Fatalf("detectLocale = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestI18NStoresLocaleInContext(t *testing.T) {
	var got string
	handler := I18N("ja")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Language", "en")
	handler.ServeHTTP(httptest.NewRecorder(), r)
	if got != "en" {
		t.Fatalf("locale = %q, want en", got)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Fatalf("client ip = %q", got)
	}
	r.Header.Del("X-Forwarded-For")
	if got := ClientIP(r); got != "10.0.0.1" {
		t.Fatalf("client ip = %q", got)
	}
}
