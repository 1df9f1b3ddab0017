package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"error\":\"internal server error\"}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestWrapperKeepsFlusher(t *testing.T) {
	var flushed bool
	h := RequestLog(RecoverJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer is not a Flusher")
		}
		w.Write([]byte("data: x\n\n"))
		f.Flush()
		flushed = true
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if !flushed || !rec.Flushed {
		t.Error("flush did not reach the recorder")
	}
}

func TestLocalOnly(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := LocalOnly("s3cret")(ok)

	cases := []struct {
		remote, secret, realIP string
		want                   int
	}{
		{"127.0.0.1:5000", "", "", http.StatusNoContent},
		{"10.0.0.8:5000", "", "", http.StatusNoContent},
		{"203.0.113.9:5000", "", "", http.StatusForbidden},
		{"203.0.113.9:5000", "", "127.0.0.1", http.StatusForbidden},
		{"203.0.113.9:5000", "s3cret", "", http.StatusNoContent},
		{"203.0.113.9:5000", "wrong", "", http.StatusForbidden},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/session", nil)
		req.RemoteAddr = c.remote
		if c.secret != "" {
			req.Header.Set("X-Bridge-Secret", c.secret)
		}
		if c.realIP != "" {
			req.Header.Set("X-Real-Ip", c.realIP)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%+v: status = %d, want %d", c, rec.Code, c.want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("abcdefgh"); got != "abcd***" {
		t.Errorf("MaskToken = %q", got)
	}
	if got := MaskToken("ab"); got != "****" {
		t.Errorf("MaskToken short = %q", got)
	}
}
