// Package testutil provides shared test helpers: loopback HTTP requests for
// tsweb debug routes and synthetic scan frames.
package testutil

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/banshee-data/scanroam/internal/scan"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LocalRequest creates a request that appears to come from loopback, which
// tsweb.Debugger routes require.
func LocalRequest(method, path string) *http.Request {
	return LocalBodyRequest(method, path, nil)
}

// LocalBodyRequest is LocalRequest with a body.
func LocalBodyRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// LocalFormRequest creates a loopback request with a url-encoded form body.
func LocalFormRequest(method, path string, form url.Values) *http.Request {
	req := LocalBodyRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// Arc returns samples at a fixed range every step radians over [from, to].
func Arc(from, to, step, rng float64) scan.ScanFrame {
	var frame scan.ScanFrame
	for b := from; b <= to+1e-9; b += step {
		frame = append(frame, scan.NewRangeSample(b, rng))
	}
	return frame
}

// Corridor returns a front-hemisphere scan of a robot standing in a
// corridor: walls at distance left and right, and an end wall at front
// (math.Inf(1) for none).
func Corridor(front, left, right float64) scan.ScanFrame {
	var frame scan.ScanFrame
	for b := -1.55; b <= 1.55; b += 0.02 {
		r := math.Inf(1)
		if c := math.Cos(b); c > 1e-9 && !math.IsInf(front, 1) {
			r = front / c
		}
		if s := math.Sin(b); s < -1e-9 {
			r = math.Min(r, left/-s)
		} else if s > 1e-9 {
			r = math.Min(r, right/s)
		}
		if math.IsInf(r, 1) {
			continue
		}
		frame = append(frame, scan.NewRangeSample(b, r))
	}
	return frame
}
