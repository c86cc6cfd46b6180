// Package api implements the REST API for evaluating oida programs and for
// managing saved scripts and their runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coregx/coregex"
	"github.com/gofiber/fiber/v2"
	"github.com/lemonberrylabs/oida/pkg/parser"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/lemonberrylabs/oida/pkg/store"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// DefaultMaxSteps bounds every run started through the API.
const DefaultMaxSteps = 1_000_000

// Config configures the API server.
type Config struct {
	// MaxSteps limits executed statements per run. Zero selects
	// DefaultMaxSteps, a negative value disables the limit.
	MaxSteps int
	// Fetcher serves holma. Nil disables fetching.
	Fetcher stdlib.Fetcher
	// RunTimeout bounds asynchronous runs. Zero means no timeout.
	RunTimeout time.Duration
	Logger     *slog.Logger
}

// Server is the REST API server.
type Server struct {
	app    *fiber.App
	store  *store.Store
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // run ID -> cancel of the active run
	running sync.WaitGroup
}

// New creates a new API server.
func New(s *store.Store, cfg Config) *Server {
	switch {
	case cfg.MaxSteps == 0:
		cfg.MaxSteps = DefaultMaxSteps
	case cfg.MaxSteps < 0:
		cfg.MaxSteps = 0
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = stdlib.DisabledFetcher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := &Server{
		store:   s,
		cfg:     cfg,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}

	// Params and query values end up as store keys, so they must not alias
	// the reused request buffer.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(srv.logRequests)

	app.Post("/v1/eval", srv.eval)

	// Scripts API
	app.Post("/v1/scripts", srv.createScript)
	app.Get("/v1/scripts", srv.listScripts)
	app.Get("/v1/scripts/:script", srv.getScript)
	app.Patch("/v1/scripts/:script", srv.updateScript)
	app.Delete("/v1/scripts/:script", srv.deleteScript)

	// Runs API
	app.Post("/v1/scripts/:script/runs", srv.createRun)
	app.Get("/v1/scripts/:script/runs", srv.listRuns)
	app.Get("/v1/scripts/:script/runs/:run", srv.getRun)
	app.Post("/v1/scripts/:script/runs/:run\\:cancel", srv.cancelRun)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests, cancels active runs and waits for them.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.running.Wait()
	return err
}

// App returns the underlying Fiber app (useful for testing and for mounting
// the web UI).
func (s *Server) App() *fiber.App {
	return s.app
}

// Wait blocks until all asynchronous runs have finished.
func (s *Server) Wait() {
	s.running.Wait()
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start))
	return err
}

func (s *Server) runOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithMaxSteps(s.cfg.MaxSteps),
		runtime.WithFetcher(s.cfg.Fetcher),
		runtime.WithLogger(s.logger),
	}
}

// --- Eval ---

type evalRequest struct {
	Source string `json:"source"`
}

func (s *Server) eval(c *fiber.Ctx) error {
	var req evalRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}

	out := runtime.Execute(c.UserContext(), req.Source, s.runOptions()...)
	if types.IsKind(out.Err, types.KindSyntaxFailure) {
		return errorJSON(c, 400, "INVALID_ARGUMENT", out.Err.Error())
	}
	return c.JSON(outcomeToJSON(out))
}

// --- Script Handlers ---

type scriptRequest struct {
	Source      string `json:"source"`
	Description string `json:"description"`
}

var validScriptID = mustCompile(`^[a-z][a-z0-9_-]*$`)

func mustCompile(pattern string) *coregex.Regexp {
	re, err := coregex.Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("api: compiling %q: %v", pattern, err))
	}
	return re
}

// ValidScriptID reports whether id can name a script.
func ValidScriptID(id string) bool {
	return len(id) <= 128 && validScriptID.MatchString(id)
}

func (s *Server) createScript(c *fiber.Ctx) error {
	scriptID := c.Query("scriptId")
	if scriptID == "" {
		return errorJSON(c, 400, "INVALID_ARGUMENT", "scriptId query parameter is required")
	}
	if !ValidScriptID(scriptID) {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid scriptId %q", scriptID))
	}

	var req scriptRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if strings.TrimSpace(req.Source) == "" {
		return errorJSON(c, 400, "INVALID_ARGUMENT", "source is required")
	}
	if _, err := parser.ParseSource(req.Source); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid script: %v", err))
	}

	sc, err := s.store.CreateScript(scriptID, req.Source, req.Description)
	if err != nil {
		return storeError(c, err)
	}
	s.logger.Info("script created", "script", sc.ID, "revision", sc.RevisionID)
	return c.JSON(scriptToJSON(sc))
}

func (s *Server) getScript(c *fiber.Ctx) error {
	sc, err := s.store.GetScript(c.Params("script"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(scriptToJSON(sc))
}

func (s *Server) listScripts(c *fiber.Ctx) error {
	scripts := s.store.ListScripts()
	items := make([]fiber.Map, len(scripts))
	for i, sc := range scripts {
		items[i] = scriptToJSON(sc)
	}
	return c.JSON(fiber.Map{"scripts": items})
}

func (s *Server) updateScript(c *fiber.Ctx) error {
	var req scriptRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Source != "" {
		if _, err := parser.ParseSource(req.Source); err != nil {
			return errorJSON(c, 400, "INVALID_ARGUMENT", fmt.Sprintf("invalid script: %v", err))
		}
	}

	sc, err := s.store.UpdateScript(c.Params("script"), req.Source, req.Description)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(scriptToJSON(sc))
}

func (s *Server) deleteScript(c *fiber.Ctx) error {
	id := c.Params("script")
	if err := s.store.DeleteScript(id); err != nil {
		return storeError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "deleted": true})
}

// --- Run Handlers ---

func (s *Server) createRun(c *fiber.Ctx) error {
	scriptID := c.Params("script")
	sc, err := s.store.GetScript(scriptID)
	if err != nil {
		return storeError(c, err)
	}
	run, err := s.store.CreateRun(scriptID)
	if err != nil {
		return storeError(c, err)
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	s.running.Add(1)
	go s.execute(ctx, sc, run.ID)

	return c.JSON(runToJSON(run))
}

// execute performs a run in the background and records its outcome.
func (s *Server) execute(ctx context.Context, sc store.Script, runID string) {
	defer s.running.Done()
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[runID]; ok {
			cancel()
			delete(s.cancels, runID)
		}
		s.mu.Unlock()
	}()

	logger := s.logger.With("script", sc.ID, "run", runID)
	logger.Debug("run started")

	out := runtime.Execute(ctx, sc.Source, s.runOptions()...)
	var err error
	if out.Err != nil {
		err = s.store.FailRun(sc.ID, runID, out.Output, out.Diagnostics, out.Err)
		logger.Info("run failed", "error", out.Err)
	} else {
		err = s.store.CompleteRun(sc.ID, runID, out.Output, out.Diagnostics, out.Steps)
		logger.Debug("run succeeded", "steps", out.Steps, "diagnostics", len(out.Diagnostics))
	}
	if err != nil && !errors.Is(err, store.ErrNotActive) {
		logger.Warn("recording run outcome", "error", err)
	}
}

func (s *Server) getRun(c *fiber.Ctx) error {
	run, err := s.store.GetRun(c.Params("script"), c.Params("run"))
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(runToJSON(run))
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	runs, err := s.store.ListRuns(c.Params("script"))
	if err != nil {
		return storeError(c, err)
	}
	items := make([]fiber.Map, len(runs))
	for i, r := range runs {
		items[i] = runToJSON(r)
	}
	return c.JSON(fiber.Map{"runs": items})
}

func (s *Server) cancelRun(c *fiber.Ctx) error {
	scriptID, runID := c.Params("script"), c.Params("run")

	if err := s.store.CancelRun(scriptID, runID); err != nil {
		return storeError(c, err)
	}
	s.mu.Lock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
	}
	s.mu.Unlock()

	run, err := s.store.GetRun(scriptID, runID)
	if err != nil {
		return storeError(c, err)
	}
	return c.JSON(runToJSON(run))
}

// --- Directory Loading ---

// LoadDir deploys every *.oida file in dir as a script. The lowercased file
// name without extension becomes the script ID. Files that cannot be read,
// parsed or stored are skipped with a warning.
func (s *Server) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading scripts directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".oida" {
			continue
		}

		base := strings.TrimSuffix(name, ".oida")
		scriptID := strings.ToLower(base)
		if scriptID != base {
			s.logger.Warn("lowercased script ID", "id", scriptID, "file", name)
		}
		if !ValidScriptID(scriptID) {
			s.logger.Warn("skipping file with invalid script ID", "file", name, "id", scriptID)
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s.logger.Warn("could not read script", "file", name, "error", err)
			continue
		}
		if _, err := parser.ParseSource(string(data)); err != nil {
			s.logger.Warn("could not parse script", "file", name, "error", err)
			continue
		}
		if _, err := s.store.CreateScript(scriptID, string(data), ""); err != nil {
			s.logger.Warn("could not deploy script", "file", name, "error", err)
			continue
		}
		loaded++
		s.logger.Info("loaded script", "id", scriptID, "file", name)
	}

	s.logger.Info("scripts loaded", "count", loaded, "dir", dir)
	return loaded, nil
}

// --- Helpers ---

func errorJSON(c *fiber.Ctx, code int, status, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}

// storeError maps store sentinel errors onto HTTP statuses.
func storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errorJSON(c, 404, "NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrAlreadyExists):
		return errorJSON(c, 409, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, store.ErrNotActive):
		return errorJSON(c, 400, "FAILED_PRECONDITION", err.Error())
	default:
		return errorJSON(c, 500, "INTERNAL", err.Error())
	}
}

func outcomeToJSON(out runtime.Outcome) fiber.Map {
	diagnostics := out.Diagnostics
	if diagnostics == nil {
		diagnostics = []string{}
	}
	result := fiber.Map{
		"output":      out.Output,
		"diagnostics": diagnostics,
		"steps":       out.Steps,
		"value":       out.Value.ToGoValue(),
	}
	if out.Err != nil {
		result["error"] = types.Details(out.Err)
	}
	return result
}

func scriptToJSON(sc store.Script) fiber.Map {
	return fiber.Map{
		"id":          sc.ID,
		"description": sc.Description,
		"state":       sc.State,
		"revisionId":  sc.RevisionID,
		"createTime":  sc.CreateTime.Format(time.RFC3339),
		"updateTime":  sc.UpdateTime.Format(time.RFC3339),
		"source":      sc.Source,
	}
}

func runToJSON(r store.Run) fiber.Map {
	result := fiber.Map{
		"id":               r.ID,
		"scriptId":         r.ScriptID,
		"state":            r.State,
		"startTime":        r.StartTime.Format(time.RFC3339),
		"scriptRevisionId": r.ScriptRevisionID,
	}
	if r.Output != "" {
		result["output"] = r.Output
	}
	if len(r.Diagnostics) > 0 {
		result["diagnostics"] = r.Diagnostics
	}
	if r.Error != nil {
		result["error"] = fiber.Map{
			"message": r.Error.Message,
			"kind":    r.Error.Kind,
		}
	}
	if !r.EndTime.IsZero() {
		result["endTime"] = r.EndTime.Format(time.RFC3339)
		result["steps"] = r.Steps
	}
	return result
}
