// Package web provides the embedded web UI for browsing scripts and runs and
// for trying out oida programs.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/store"
	"github.com/lemonberrylabs/oida/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// playgroundTimeout bounds a single playground evaluation.
const playgroundTimeout = 10 * time.Second

// Handler serves the web UI pages.
type Handler struct {
	store   *store.Store
	runOpts []runtime.Option
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// New creates a new web UI handler. opts configure the interpreter used by
// the playground.
func New(s *store.Store, opts ...runtime.Option) *Handler {
	return &Handler{
		store:   s,
		runOpts: opts,
		funcMap: template.FuncMap{
			"shortID":    shortID,
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"duration":   duration,
			"stateClass": stateClass,
			"stateIcon":  stateIcon,
			"truncate":   truncate,
			"countLines": countLines,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	// Each page is parsed together with the layout so that the "content"
	// blocks of different pages do not collide.
	tmpl, err := template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
	if err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pageData{NavActive: navActive, Data: data}); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/scripts/:id", h.scriptDetail)
	app.Get("/ui/runs/:script/:run", h.runDetail)
	app.Get("/ui/playground", h.playground)
	app.Post("/ui/playground", h.playground)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Scripts        []scriptView
	RecentRuns     []store.Run
	ActiveCount    int
	SucceededCount int
	FailedCount    int
	CancelledCount int
}

type scriptView struct {
	store.Script
	RunCount    int
	ActiveCount int
}

type scriptDetailContent struct {
	Script store.Script
	Runs   []store.Run
}

type runDetailContent struct {
	Run    store.Run
	Script store.Script
}

type playgroundContent struct {
	Source      string
	Evaluated   bool
	Output      string
	Diagnostics []string
	Error       string
	Steps       int
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) dashboard(c *fiber.Ctx) error {
	var content dashboardContent

	for _, sc := range h.store.ListScripts() {
		runs, err := h.store.ListRuns(sc.ID)
		if err != nil {
			// Deleted between the two calls.
			continue
		}
		view := scriptView{Script: sc, RunCount: len(runs)}
		for _, r := range runs {
			switch r.State {
			case store.RunActive:
				view.ActiveCount++
				content.ActiveCount++
			case store.RunSucceeded:
				content.SucceededCount++
			case store.RunFailed:
				content.FailedCount++
			case store.RunCancelled:
				content.CancelledCount++
			}
		}
		content.Scripts = append(content.Scripts, view)
	}
	content.RecentRuns = h.store.RecentRuns(10)

	return h.render(c, "dashboard.html", "dashboard", content)
}

func (h *Handler) scriptDetail(c *fiber.Ctx) error {
	id := c.Params("id")
	sc, err := h.store.GetScript(id)
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Script '%s' not found", id))
	}
	runs, err := h.store.ListRuns(id)
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Script '%s' not found", id))
	}
	return h.render(c, "script_detail.html", "dashboard", scriptDetailContent{
		Script: sc,
		Runs:   runs,
	})
}

func (h *Handler) runDetail(c *fiber.Ctx) error {
	scriptID, runID := c.Params("script"), c.Params("run")
	run, err := h.store.GetRun(scriptID, runID)
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Run '%s' not found", runID))
	}
	sc, err := h.store.GetScript(scriptID)
	if err != nil {
		return h.notFound(c, fmt.Sprintf("Script '%s' not found", scriptID))
	}
	return h.render(c, "run_detail.html", "dashboard", runDetailContent{
		Run:    run,
		Script: sc,
	})
}

func (h *Handler) playground(c *fiber.Ctx) error {
	content := playgroundContent{Source: c.FormValue("source")}
	if c.Method() == fiber.MethodPost {
		ctx, cancel := context.WithTimeout(c.UserContext(), playgroundTimeout)
		defer cancel()

		out := runtime.Execute(ctx, content.Source, h.runOpts...)
		content.Evaluated = true
		content.Output = out.Output
		content.Diagnostics = out.Diagnostics
		content.Steps = out.Steps
		if out.Err != nil {
			content.Error = fmt.Sprintf("%s: %v", types.KindOf(out.Err), out.Err)
		}
	}
	return h.render(c, "playground.html", "playground", content)
}

func (h *Handler) notFound(c *fiber.Ctx, msg string) error {
	c.Status(fiber.StatusNotFound)
	return h.render(c, "not_found.html", "", notFoundContent{Message: msg})
}

// --- Template Helpers ---

// shortID abbreviates a run UUID to its first block.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return fmt.Sprintf("%s (running)", formatDuration(time.Since(start)))
	}
	return formatDuration(end.Sub(start))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}

func stateClass(state store.RunState) string {
	switch state {
	case store.RunActive:
		return "state-active"
	case store.RunSucceeded:
		return "state-succeeded"
	case store.RunFailed:
		return "state-failed"
	case store.RunCancelled:
		return "state-cancelled"
	default:
		return ""
	}
}

func stateIcon(state store.RunState) template.HTML {
	switch state {
	case store.RunActive:
		return "&#9654;"
	case store.RunSucceeded:
		return "&#10003;"
	case store.RunFailed:
		return "&#10007;"
	case store.RunCancelled:
		return "&#9632;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}
