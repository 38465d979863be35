package service

import "strings"

// SanitizeReturnURL accepts only local paths as post-login redirect targets
// and falls back to "/" for everything else. A leading "//" or "/\" is a
// scheme-relative URL and is rejected with the absolute ones.
func SanitizeReturnURL(returnURL string) string {
	if returnURL == "" {
		return "/"
	}
	if !strings.HasPrefix(returnURL, "/") {
		return "/"
	}
	if strings.HasPrefix(returnURL, "//") || strings.HasPrefix(returnURL, "/\\") {
		return "/"
	}
	return returnURL
}
