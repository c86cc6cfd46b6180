package store

import (
	"errors"
	"sync"
	"testing"

	"github.com/lemonberrylabs/oida/pkg/types"
)

func TestScriptLifecycle(t *testing.T) {
	s := New()

	sc, err := s.CreateScript("hallo", `oida.sag("servus")`, "grüßt")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sc.State != ScriptActive || sc.RevisionID == "" {
		t.Errorf("unexpected script %+v", sc)
	}

	if _, err := s.CreateScript("hallo", `oida.sag(1)`, ""); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate create: got %v, want ErrAlreadyExists", err)
	}

	updated, err := s.UpdateScript("hallo", `oida.sag("baba")`, "")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.RevisionID == sc.RevisionID {
		t.Error("revision did not change")
	}
	if updated.Description != "grüßt" {
		t.Errorf("description = %q, want it kept", updated.Description)
	}

	got, err := s.GetScript("hallo")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != `oida.sag("baba")` {
		t.Errorf("source = %q", got.Source)
	}

	if err := s.DeleteScript("hallo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetScript("hallo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: got %v, want ErrNotFound", err)
	}
	if err := s.DeleteScript("hallo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestListScriptsSorted(t *testing.T) {
	s := New()
	for _, id := range []string{"c", "a", "b"} {
		if _, err := s.CreateScript(id, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	list := s.ListScripts()
	if len(list) != 3 || list[0].ID != "a" || list[2].ID != "c" {
		t.Errorf("unexpected order %v", list)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := New()
	if _, err := s.CreateScript("x", `oida.sag(1)`, ""); err != nil {
		t.Fatal(err)
	}

	r, err := s.CreateRun("x")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if r.State != RunActive || r.Finished() {
		t.Errorf("new run state = %s", r.State)
	}

	if err := s.CompleteRun("x", r.ID, "1\n", []string{"warnung"}, 3); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := s.GetRun("x", r.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.State != RunSucceeded || got.Output != "1\n" || got.Steps != 3 || got.EndTime.IsZero() {
		t.Errorf("unexpected run %+v", got)
	}

	if err := s.CancelRun("x", r.ID); !errors.Is(err, ErrNotActive) {
		t.Errorf("cancel finished run: got %v, want ErrNotActive", err)
	}
}

func TestFailRunKeepsKind(t *testing.T) {
	s := New()
	s.CreateScript("x", "", "")
	r, _ := s.CreateRun("x")

	if err := s.FailRun("x", r.ID, "", nil, types.NewStepLimitError(10)); err != nil {
		t.Fatalf("fail: %v", err)
	}
	got, _ := s.GetRun("x", r.ID)
	if got.State != RunFailed || got.Error == nil || got.Error.Kind != string(types.KindStepLimit) {
		t.Errorf("unexpected run %+v", got)
	}
}

func TestRunsOfUnknownScript(t *testing.T) {
	s := New()
	if _, err := s.CreateRun("nix"); !errors.Is(err, ErrNotFound) {
		t.Errorf("create run: got %v", err)
	}
	if _, err := s.ListRuns("nix"); !errors.Is(err, ErrNotFound) {
		t.Errorf("list runs: got %v", err)
	}
	s.CreateScript("x", "", "")
	if _, err := s.GetRun("x", "weg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get run: got %v", err)
	}
}

func TestReturnedRunsAreCopies(t *testing.T) {
	s := New()
	s.CreateScript("x", "", "")
	r, _ := s.CreateRun("x")
	s.CompleteRun("x", r.ID, "", []string{"a"}, 1)

	got, _ := s.GetRun("x", r.ID)
	got.Diagnostics[0] = "verändert"
	again, _ := s.GetRun("x", r.ID)
	if again.Diagnostics[0] != "a" {
		t.Error("store shares diagnostics with callers")
	}
}

func TestRecentRuns(t *testing.T) {
	s := New()
	s.CreateScript("a", "", "")
	s.CreateScript("b", "", "")
	for i := 0; i < 3; i++ {
		s.CreateRun("a")
		s.CreateRun("b")
	}
	if got := s.RecentRuns(4); len(got) != 4 {
		t.Errorf("got %d runs, want 4", len(got))
	}
	if got := s.RecentRuns(0); len(got) != 6 {
		t.Errorf("got %d runs, want 6", len(got))
	}
}

func TestConcurrentRuns(t *testing.T) {
	s := New()
	s.CreateScript("x", "", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := s.CreateRun("x")
			if err != nil {
				t.Error(err)
				return
			}
			s.CompleteRun("x", r.ID, "ok", nil, 1)
		}()
	}
	wg.Wait()

	runs, _ := s.ListRuns("x")
	if len(runs) != 50 {
		t.Fatalf("got %d runs, want 50", len(runs))
	}
	for _, r := range runs {
		if r.State != RunSucceeded {
			t.Errorf("run %s state = %s", r.ID, r.State)
		}
	}
}
