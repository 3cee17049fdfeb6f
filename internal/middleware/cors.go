package middleware

import (
	"net/http"
	"strings"
)

// corsAllowedHeaders はプリフライトで許可するリクエストヘッダー。
var corsAllowedHeaders = "Content-Type, " + RequestIDHeader

// NewCORSMiddleware はCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、"*"はすべてのオリジンを許可する。
// 1つだけ指定された場合は常にそのオリジンを返し、複数の場合は一致したOriginを返す。
// APIは読み取り専用のため、GETとOPTIONSのみを許可する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if origin, ok := matchOrigin(origins, r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
				h.Set("Access-Control-Max-Age", "86400")
			}
			if len(origins) > 1 {
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, strings.TrimRight(o, "/"))
		}
	}
	return origins
}

// matchOrigin はレスポンスに設定するAccess-Control-Allow-Originの値を返す。
func matchOrigin(origins []string, requestOrigin string) (string, bool) {
	switch len(origins) {
	case 0:
		return "", false
	case 1:
		return origins[0], true
	}

	for _, o := range origins {
		if o == "*" {
			return "*", true
		}
		if requestOrigin != "" && strings.EqualFold(o, requestOrigin) {
			return requestOrigin, true
		}
	}
	return "", false
}
