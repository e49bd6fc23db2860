package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// LocaleKey stores the resolved message locale in the request context.
var LocaleKey = localeContextKey{}

// Supported message locales; Japanese is the primary audience.
var (
	localeMatcher = language.NewMatcher([]language.Tag{
		language.Japanese,
		language.English,
	})
	localeNames = []string{"ja", "en"}
)

// I18N resolves the client's message locale from X-Locale or
// Accept-Language and stores it in the request context. Error messages per
// errorCode are localized with it.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, defaultLocale)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LocaleFromContext returns the resolved locale, defaulting to Japanese.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "ja"
}

func detectLocale(r *http.Request, fallback string) string {
	if v := r.Header.Get("X-Locale"); v != "" {
		if locale := matchLocale(v); locale != "" {
			return locale
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if locale := matchLocale(accept); locale != "" {
			return locale
		}
	}
	if fallback != "" {
		return fallback
	}
	return "ja"
}

func matchLocale(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, index, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		return ""
	}
	return localeNames[index]
}
