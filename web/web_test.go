package web

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/store"
	"github.com/lemonberrylabs/oida/pkg/types"
)

func setupTestApp(t *testing.T) (*fiber.App, *store.Store) {
	t.Helper()
	s := store.New()
	h := New(s, runtime.WithMaxSteps(1000))
	app := fiber.New()
	h.Register(app)
	return app, s
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestDashboardEmpty(t *testing.T) {
	app, _ := setupTestApp(t)

	status, html := get(t, app, "/ui")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, html)
	}
	if !containsStr(html, "Dashboard") {
		t.Error("expected Dashboard in response")
	}
	if !containsStr(html, "No scripts deployed") {
		t.Error("expected empty state message")
	}
}

func TestDashboardWithData(t *testing.T) {
	app, s := setupTestApp(t)

	if _, err := s.CreateScript("hallo", `oida.sag("servus")`, "Grüßt die Welt"); err != nil {
		t.Fatalf("failed to create script: %v", err)
	}
	r, _ := s.CreateRun("hallo")
	s.FailRun("hallo", r.ID, "", nil, types.NewZeroDivisionError())

	status, html := get(t, app, "/ui")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !containsStr(html, "hallo") {
		t.Error("expected script ID in response")
	}
	if !containsStr(html, "/ui/runs/hallo/"+r.ID) {
		t.Error("expected link to the recent run")
	}
	if !containsStr(html, "state-failed") {
		t.Error("expected failed state marker")
	}
}

func TestScriptDetail(t *testing.T) {
	app, s := setupTestApp(t)
	s.CreateScript("zaehler", "heast i = 0;\ni plusplus", "Zählt")

	status, html := get(t, app, "/ui/scripts/zaehler")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	for _, want := range []string{"zaehler", "Zählt", "plusplus", "Start run", "not been run yet"} {
		if !containsStr(html, want) {
			t.Errorf("expected %q in response", want)
		}
	}
}

func TestScriptNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	status, html := get(t, app, "/ui/scripts/fehlt")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	if !containsStr(html, "Not Found") {
		t.Error("expected Not Found in response")
	}
}

func TestRunDetail(t *testing.T) {
	app, s := setupTestApp(t)
	s.CreateScript("x", `oida.sag(1)`, "")
	r, _ := s.CreateRun("x")
	s.CompleteRun("x", r.ID, "Servus\n", []string{"Unbekannter Bezeichner 'y'"}, 4)

	status, html := get(t, app, "/ui/runs/x/"+r.ID)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	for _, want := range []string{"SUCCEEDED", "Servus", "Fehler: Unbekannter Bezeichner", shortID(r.ID)} {
		if !containsStr(html, want) {
			t.Errorf("expected %q in response", want)
		}
	}

	if status, _ := get(t, app, "/ui/runs/x/weg"); status != 404 {
		t.Errorf("unknown run: expected 404, got %d", status)
	}
}

func TestPlayground(t *testing.T) {
	app, _ := setupTestApp(t)

	if status, html := get(t, app, "/ui/playground"); status != 200 || !containsStr(html, "<textarea") {
		t.Fatalf("expected form, got %d", status)
	}

	form := url.Values{"source": {`heast x = 20; oida.sag(x plus 1); oida.sag(1 dividier 0)`}}
	req := httptest.NewRequest("POST", "/ui/playground", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	html := string(body)

	if !containsStr(html, "<pre>21\n</pre>") {
		t.Errorf("expected program output in response:\n%s", html)
	}
	if !containsStr(html, "Division durch null") {
		t.Error("expected diagnostic in response")
	}
}

func TestPlaygroundStepLimit(t *testing.T) {
	app, _ := setupTestApp(t)

	form := url.Values{"source": {`geh weida (basst) { heast x = 1 }`}}
	req := httptest.NewRequest("POST", "/ui/playground", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !containsStr(string(body), "StepLimit") {
		t.Error("expected step limit error in response")
	}
}

func TestRootRedirect(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 302 {
		t.Fatalf("expected 302 redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/ui" {
		t.Fatalf("expected redirect to /ui, got %s", loc)
	}
}

func TestHelpers(t *testing.T) {
	if got := shortID("3f2a9c1e-0000-4000-8000-000000000000"); got != "3f2a9c1e" {
		t.Errorf("shortID = %q", got)
	}
	if got := truncate("Grüß di Gott", 4); got != "Grüß..." {
		t.Errorf("truncate = %q", got)
	}
	if got := countLines("a\nb\n"); got != 2 {
		t.Errorf("countLines = %d", got)
	}
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDuration = %q", got)
	}
	if got := timeAgo(time.Now().Add(-2 * time.Hour)); got != "2 hours ago" {
		t.Errorf("timeAgo = %q", got)
	}
	if stateClass(store.RunFailed) != "state-failed" {
		t.Error("unexpected class for failed runs")
	}
}

func containsStr(s, substr string) bool {
	return strings.Contains(s, substr)
}
