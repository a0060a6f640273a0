package middleware

import "testing"

func TestNormalizePathKeepsKnownRoutes(t *testing.T) {
	for path := range knownPaths {
		if got := normalizePath(path); got != path {
			t.Fatalf("path %q: expected passthrough, got %q", path, got)
		}
	}
}

func TestNormalizePathCollapsesUnknownRoutes(t *testing.T) {
	for _, path := range []string{
		"/",
		"/admin",
		"/chat/",
		"/chat/visibility/extra",
		"/wp-login.php",
	} {
		if got := normalizePath(path); got != "/other" {
			t.Fatalf("path %q: expected /other, got %q", path, got)
		}
	}
}
