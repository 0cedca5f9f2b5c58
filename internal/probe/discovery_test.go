package probe

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/khanhnv2901/secprobe/internal/domain/report"
)

func discoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/.env", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("DB_PASSWORD=hunter2"))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoveryFindsSensitivePaths(t *testing.T) {
	srv := discoveryServer(t)
	params := Params{TargetURL: srv.URL, CommonPaths: []string{"/health", "/.env", "/missing", "/old"}}
	p := NewDiscovery(httpDeps())

	first := execute(t, p, params)
	second := execute(t, p, params)

	want := []string{"/health", "/.env", "/old"}
	if got := detailStrings(t, first, "foundEndpoints"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := detailStrings(t, second, "foundEndpoints"); !reflect.DeepEqual(got, want) {
		t.Fatalf("second run: expected %v, got %v", want, got)
	}
	if detailInt(t, first, "totalPaths") != 4 {
		t.Fatalf("expected 4 total paths, got %v", first.Details["totalPaths"])
	}

	if !hasFinding(first, report.SeverityCritical, "Critical endpoint exposed: /.env") {
		t.Fatalf("expected .env finding, got %+v", first.Findings)
	}
	if first.Status != report.StatusVulnerable {
		t.Fatalf("expected vulnerable, got %s", first.Status)
	}

	for i, a := range first.Attempts {
		if a.Path != params.CommonPaths[i] {
			t.Fatalf("attempt %d: expected %s, got %s", i, params.CommonPaths[i], a.Path)
		}
	}
	if first.Attempts[3].StatusCode != http.StatusMovedPermanently {
		t.Fatalf("redirect should not be followed, got %d", first.Attempts[3].StatusCode)
	}
	if first.Attempts[2].Flag("found") {
		t.Fatal("404 must not count as found")
	}
	assertDerived(t, p, first)
}

func TestDiscoveryExposedWithoutSensitivePaths(t *testing.T) {
	s := &stubSender{respond: fixedResponse(http.StatusOK, 5*time.Millisecond, "page")}
	p := NewDiscovery(stubDeps(s))

	r := execute(t, p, Params{
		TargetURL:   "https://app.example.com",
		CommonPaths: []string{"/a", "/b", "/c", "/d", "/e", "/f"},
	})
	if r.Status != report.StatusExposed {
		t.Fatalf("expected exposed, got %s (%+v)", r.Status, r.Findings)
	}
	if len(r.Findings) != 0 {
		t.Fatalf("expected no findings, got %+v", r.Findings)
	}
	if r.Recommendations[0] != "Many endpoints are discoverable" {
		t.Fatalf("unexpected advice %q", r.Recommendations[0])
	}

	r = execute(t, p, Params{
		TargetURL:   "https://app.example.com",
		CommonPaths: []string{"/a", "/b", "/c", "/d", "/e"},
	})
	if r.Status != report.StatusProtected {
		t.Fatalf("expected protected with five found, got %s", r.Status)
	}
}

func TestDiscoveryDefaultPaths(t *testing.T) {
	s := &stubSender{respond: fixedResponse(http.StatusNotFound, time.Millisecond, "")}
	r := execute(t, NewDiscovery(stubDeps(s)), Params{TargetURL: "https://app.example.com/"})

	if s.count() != 31 {
		t.Fatalf("expected 31 default paths, got %d", s.count())
	}
	if detailStrings(t, r, "foundEndpoints") == nil {
		t.Fatal("foundEndpoints must be an empty list, not nil")
	}
	if !s.requests[0].NoRedirect {
		t.Fatal("discovery requests must not follow redirects")
	}
	if r.Status != report.StatusProtected {
		t.Fatalf("expected protected, got %s", r.Status)
	}
}
