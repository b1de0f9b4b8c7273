package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type upstreamCall struct {
	method     string
	path       string
	query      string
	origin     string
	referer    string
	userAgent  string
	fieldNames []string
	fields     map[string]string
}

type fakeUpstream struct {
	mu    sync.Mutex
	calls []upstreamCall
	srv   *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := upstreamCall{
			method:    r.Method,
			path:      r.URL.Path,
			query:     r.URL.Query().Get("q"),
			origin:    r.Header.Get("Origin"),
			referer:   r.Header.Get("Referer"),
			userAgent: r.Header.Get("User-Agent"),
			fields:    map[string]string{},
		}
		if mr, err := r.MultipartReader(); err == nil {
			for {
				part, err := mr.NextPart()
				if err != nil {
					break
				}
				v, _ := io.ReadAll(part)
				call.fieldNames = append(call.fieldNames, part.FormName())
				call.fields[part.FormName()] = string(v)
			}
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		switch r.URL.Path {
		case "/search.php":
			_, _ = io.WriteString(w, `["1|Chennai|Tamil Nadu|India|IN|Asia/Kolkata|13.1|80.3"]`)
		case "/porutham":
			_, _ = io.WriteString(w, `<h2>Total Porutham Points</h2></td><td class="tc"><h2>7 / 10</h2>`)
		default:
			_, _ = io.WriteString(w, `<p>nakshatra & rasi</p>`)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) last(t *testing.T) upstreamCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no upstream calls")
	}
	return f.calls[len(f.calls)-1]
}

func newTestRelay(t *testing.T, token string) (*httptest.Server, *fakeUpstream) {
	t.Helper()
	up := newFakeUpstream(t)
	s := NewServer(Options{
		AuthToken:    token,
		SearchURL:    up.srv.URL + "/search.php",
		MatchURL:     up.srv.URL + "/porutham",
		NakshatraURL: up.srv.URL + "/nakshatra-finder/",
	}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, up
}

func decodeStringBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var s string
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("body is not a JSON string: %v", err)
	}
	return s
}

func TestRelay_Search(t *testing.T) {
	srv, up := newTestRelay(t, "")
	resp, err := http.Get(srv.URL + DefaultBasePath + "/search?q=Chen+nai")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	body := decodeStringBody(t, resp)
	if !strings.HasPrefix(body, `["1|Chennai`) {
		t.Errorf("body = %q", body)
	}
	if call := up.last(t); call.query != "Chen nai" || call.path != "/search.php" {
		t.Errorf("upstream call = %+v", call)
	}
}

func TestRelay_MatchForwardsFormInOrder(t *testing.T) {
	srv, up := newTestRelay(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	names := []string{"compatibility_system", "gname", "bmonth", "bday", "utm_medium"}
	values := []string{"Tamil Porutham", "Priya", "3", "14", ""}
	for i := range names {
		_ = mw.WriteField(names[i], values[i])
	}
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/match", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := decodeStringBody(t, resp); !strings.Contains(body, "7 / 10") {
		t.Errorf("body = %q", body)
	}

	call := up.last(t)
	if call.method != http.MethodPost || call.path != "/porutham" {
		t.Errorf("upstream %s %s", call.method, call.path)
	}
	if call.origin != DefaultOrigin || call.userAgent != DefaultUserAgent {
		t.Errorf("headers origin=%q ua=%q", call.origin, call.userAgent)
	}
	if !strings.HasSuffix(call.referer, "/porutham") {
		t.Errorf("Referer = %q", call.referer)
	}
	if strings.Join(call.fieldNames, ",") != strings.Join(names, ",") {
		t.Errorf("field order = %v, want %v", call.fieldNames, names)
	}
	for i, n := range names {
		if call.fields[n] != values[i] {
			t.Errorf("field %s = %q, want %q", n, call.fields[n], values[i])
		}
	}
}

func TestRelay_NakshatraKeepsHTMLUnescaped(t *testing.T) {
	srv, _ := newTestRelay(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("day", "23")
	_ = mw.Close()

	resp, err := http.Post(srv.URL+DefaultBasePath+"/nakshatra", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != `"<p>nakshatra & rasi</p>"` {
		t.Errorf("raw body = %s", raw)
	}
}

func TestRelay_OptionsAndNotFound(t *testing.T) {
	srv, _ := newTestRelay(t, "secret")

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+DefaultBasePath+"/match", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("OPTIONS = %d %q", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "POST, GET, OPTIONS" {
		t.Errorf("allow methods = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); got != "authorization, x-client-info, apikey, content-type" {
		t.Errorf("allow headers = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+DefaultBasePath+"/horoscope-image", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || strings.TrimSpace(string(body)) != "Not Found" {
		t.Errorf("unknown route = %d %q", resp.StatusCode, body)
	}
}

func TestRelay_Authorization(t *testing.T) {
	srv, _ := newTestRelay(t, "secret")

	resp, err := http.Get(srv.URL + "/search?q=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/search?q=abc", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d", resp.StatusCode)
	}
}

func TestRelay_BadFormIs500(t *testing.T) {
	srv, _ := newTestRelay(t, "")
	resp, err := http.Post(srv.URL+"/match", "text/plain", strings.NewReader("nope"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" {
		t.Errorf("expected error message, got %v", body)
	}
}

func TestRelay_UpstreamDownIs500(t *testing.T) {
	s := NewServer(Options{SearchURL: "http://127.0.0.1:1/search.php"}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/search?q=abc")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
