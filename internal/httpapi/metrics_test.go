package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 503: "503"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d) = %q", n, got)
		}
	}
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	r := httptest.NewRequest("GET", "/detectors/abc/load", nil)
	if got := routePatternOrPath(r); got != "/detectors/abc/load" {
		t.Fatalf("fallback = %q", got)
	}
}
