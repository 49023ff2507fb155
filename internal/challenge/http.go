// Package challenge recognizes anti-automation challenges, both in plain HTTP
// responses and in rendered pages.
package challenge

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP response the detectors look at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Verdict is the outcome of running a detector set.
type Verdict struct {
	Detected bool   `json:"detected"`
	Source   string `json:"source,omitempty"`
}

// HTTPDetector reports whether a response is a bot-protection block or
// challenge, and which vendor served it.
type HTTPDetector func(res *Response) (detected bool, source string)

// HTTPDetectors returns the standard vendor detectors.
func HTTPDetectors() []HTTPDetector {
	return []HTTPDetector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// InspectResponse runs res through detectors and returns the first hit.
func InspectResponse(res *Response, detectors []HTTPDetector) Verdict {
	if res == nil {
		return Verdict{}
	}
	for _, d := range detectors {
		if ok, src := d(res); ok {
			return Verdict{Detected: true, Source: src}
		}
	}
	return Verdict{}
}

func header(res *Response, key string) string {
	if res.Header == nil {
		return ""
	}
	return res.Header.Get(key)
}

func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	for _, sig := range []string{"cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare"} {
		if bytes.Contains(res.Body, []byte(sig)) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res, "Server")), "akamai") {
		return true, "Akamai"
	}
	// Generic Akamai block page.
	if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(res, "Server")), "datadome") ||
		header(res, "X-DataDome") != "" || header(res, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) || bytes.Contains(res.Body, []byte("datadome")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(res, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	for _, sig := range []string{"client.perimeterx.net", "px-captcha", "_pxBlock"} {
		if bytes.Contains(res.Body, []byte(sig)) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
