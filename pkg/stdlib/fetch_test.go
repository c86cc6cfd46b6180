package stdlib

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lemonberrylabs/oida/pkg/types"
)

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "Ferdl", "alter": 42, "tags": ["a", "b"]}`))
	}))
	defer srv.Close()

	v, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Type() != types.TypeMap {
		t.Fatalf("got %s, want assoc", v.Type())
	}
	name, _ := v.AsMap().Get("name")
	if name.AsString() != "Ferdl" {
		t.Errorf("name = %v", name)
	}
	alter, _ := v.AsMap().Get("alter")
	if alter.Type() != types.TypeInt || alter.AsInt() != 42 {
		t.Errorf("alter = %v (%s), want int 42", alter, alter.Type())
	}
	tags, _ := v.AsMap().Get("tags")
	if len(tags.AsList()) != 2 {
		t.Errorf("tags = %v", tags)
	}
}

func TestFetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Servus"))
	}))
	defer srv.Close()

	v, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Type() != types.TypeString || v.AsString() != "Servus" {
		t.Errorf("got %v (%s), want text Servus", v, v.Type())
	}
}

func TestFetchInvalidJSONFallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{kaputt"))
	}))
	defer srv.Close()

	v, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AsString() != "{kaputt" {
		t.Errorf("got %v", v)
	}
}

func TestFetchFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/alt", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/neu", http.StatusFound)
	})
	mux.HandleFunc("/neu", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	v, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL+"/alt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.AsList()) != 2 {
		t.Errorf("got %v, want [1, 2]", v)
	}
}

func TestFetchNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "weg", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL)
	if !types.IsKind(err, types.KindFetchFailure) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
	if e, ok := err.(*types.Error); !ok || e.Code != http.StatusNotFound {
		t.Errorf("code = %v, want 404", err)
	}
}

func TestFetchTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	_, err := NewHTTPFetcher(50*time.Millisecond).Fetch(context.Background(), srv.URL)
	if !types.IsKind(err, types.KindFetchFailure) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "Zeitüberschreitung") {
		t.Errorf("error %q does not mention the timeout", err)
	}
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", MaxResponseSize+10)))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(0).Fetch(context.Background(), srv.URL)
	if !types.IsKind(err, types.KindFetchFailure) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
}

func TestFetchRejectsMalformedURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/x", "http://", "kein url"} {
		t.Run(raw, func(t *testing.T) {
			_, err := NewHTTPFetcher(0).Fetch(context.Background(), raw)
			if !types.IsKind(err, types.KindTypeMismatch) {
				t.Fatalf("expected TypeMismatch, got %v", err)
			}
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(time.Second).Fetch(context.Background(), url)
	if !types.IsKind(err, types.KindFetchFailure) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
}

func TestDisabledFetcher(t *testing.T) {
	_, err := DisabledFetcher.Fetch(context.Background(), "http://example.com")
	if !types.IsKind(err, types.KindFetchFailure) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
}
