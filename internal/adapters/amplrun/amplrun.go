// Package amplrun drives a local AMPL installation through its command line
// interpreter. Each solve writes the model, data and a generated run script
// into a scratch directory, executes ampl there and parses the marker
// sections the script prints back out.
package amplrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/optilab/optilab-api/internal/core"
	"github.com/optilab/optilab-api/internal/domain/model"
)

const (
	defaultBinary        = "ampl"
	defaultMaxTranscript = 64 * 1024

	modelFile  = "model.mod"
	dataFile   = "model.dat"
	scriptFile = "solve.run"

	// validateTimeout bounds syntax-only checks, which never run a solver.
	validateTimeout = 30 * time.Second
)

// Config controls how the engine invokes AMPL.
type Config struct {
	// Binary is the AMPL executable, resolved through PATH when relative.
	// Defaults to "ampl".
	Binary string
	// SolverDir, when set, is prepended to PATH so solver binaries shipped
	// next to AMPL are found.
	SolverDir string
	// WorkRoot is the parent directory for per-solve scratch directories.
	// Defaults to the system temp directory.
	WorkRoot string
	// MaxTranscript caps the solver output kept on a run, in bytes.
	MaxTranscript int
	Logger        *slog.Logger
}

// Engine implements core.SolverEngine against the AMPL command line.
type Engine struct {
	binary        string
	solverDir     string
	workRoot      string
	maxTranscript int
	logger        *slog.Logger
}

var _ core.SolverEngine = (*Engine)(nil)

// New constructs an AMPL engine, applying defaults for unset config fields.
func New(cfg Config) *Engine {
	binary := cfg.Binary
	if binary == "" {
		binary = defaultBinary
	}
	maxTranscript := cfg.MaxTranscript
	if maxTranscript <= 0 {
		maxTranscript = defaultMaxTranscript
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		binary:        binary,
		solverDir:     cfg.SolverDir,
		workRoot:      cfg.WorkRoot,
		maxTranscript: maxTranscript,
		logger:        logger.With("component", "ampl_engine"),
	}
}

// Solve runs one optimization through the AMPL interpreter. Model or solver
// problems come back as a SolveOutput with an error status; only failures of
// the engine itself (missing binary, unwritable scratch space, expired
// timeout) are returned as errors.
func (e *Engine) Solve(ctx context.Context, input core.SolveInput) (*core.SolveOutput, error) {
	script, err := buildRunScript(input)
	if err != nil {
		// Bad solver options are a user mistake, not an engine failure.
		return errorOutput(err.Error(), ""), nil
	}

	dir, err := os.MkdirTemp(e.workRoot, "optilab-solve-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	files := map[string]string{
		modelFile:  input.ModelText,
		scriptFile: script,
	}
	if input.DataText != "" {
		files[dataFile] = input.DataText
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	execCtx := ctx
	if input.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, input.Timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, runErr := e.runAMPL(execCtx, dir)

	if ctx.Err() != nil {
		// The caller gave up (shutdown or cancel request); let it decide what
		// to record.
		return nil, ctx.Err()
	}
	if execCtx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("solve timed out after %s", input.Timeout)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// AMPL exits non-zero on model and script errors. That is a
			// problem with the submitted model, not with the engine.
			msg := condenseFailure(stderr, stdout, exitErr.ExitCode())
			out := errorOutput(msg, truncateTranscript(stdout+"\n"+stderr, e.maxTranscript))
			return out, nil
		}
		if errors.Is(runErr, exec.ErrNotFound) {
			return nil, fmt.Errorf("ampl binary %q not found: %w", e.binary, runErr)
		}
		return nil, fmt.Errorf("run ampl: %w", runErr)
	}

	out := parseSolveTranscript(stdout, stderr, e.maxTranscript)
	e.logger.Debug("ampl solve finished",
		"solver", input.Solver,
		"status", out.Status,
		"duration", time.Since(start))
	return out, nil
}

// ValidateModel loads the model text without solving and reports the parse
// errors AMPL produced, if any.
func (e *Engine) ValidateModel(ctx context.Context, modelText string) (*model.ModelValidation, error) {
	if strings.TrimSpace(modelText) == "" {
		return &model.ModelValidation{Valid: false, Errors: []string{"model is empty"}}, nil
	}

	dir, err := os.MkdirTemp(e.workRoot, "optilab-check-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := fmt.Sprintf("model %s;\nprintf \"%s\\n\";\n", modelFile, validateOKMarker)
	for name, content := range map[string]string{modelFile: modelText, scriptFile: script} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	stdout, stderr, runErr := e.runAMPL(execCtx, dir)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if execCtx.Err() == context.DeadlineExceeded {
		return &model.ModelValidation{Valid: false, Errors: []string{"validation timed out"}}, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &model.ModelValidation{
				Valid:  false,
				Errors: validationErrors(stderr, stdout),
			}, nil
		}
		if errors.Is(runErr, exec.ErrNotFound) {
			return nil, fmt.Errorf("ampl binary %q not found: %w", e.binary, runErr)
		}
		return nil, fmt.Errorf("run ampl: %w", runErr)
	}

	if !strings.Contains(stdout, validateOKMarker) {
		return &model.ModelValidation{
			Valid:  false,
			Errors: validationErrors(stderr, stdout),
		}, nil
	}
	return &model.ModelValidation{Valid: true, Errors: []string{}}, nil
}

// Solvers reports the catalog with availability probed against this
// installation. Without the AMPL frontend no solver is reachable, so the
// whole catalog comes back unavailable.
func (e *Engine) Solvers(_ context.Context) ([]model.SolverInfo, error) {
	catalog := model.SolverCatalog()
	if _, err := exec.LookPath(e.binary); err != nil {
		return catalog, nil
	}
	for i := range catalog {
		catalog[i].Available = e.solverOnPath(catalog[i].Name)
	}
	return catalog, nil
}

func (e *Engine) runAMPL(ctx context.Context, dir string) (stdout, stderr string, err error) {
	// #nosec G204 -- the binary comes from server configuration and the
	// script name is a fixed constant, not user input
	cmd := exec.CommandContext(ctx, e.binary, scriptFile)
	cmd.Dir = dir
	if e.solverDir != "" {
		cmd.Env = append(os.Environ(),
			"PATH="+e.solverDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

func (e *Engine) solverOnPath(name string) bool {
	if e.solverDir != "" {
		if info, statErr := os.Stat(filepath.Join(e.solverDir, name)); statErr == nil && !info.IsDir() {
			return true
		}
	}
	_, err := exec.LookPath(name)
	return err == nil
}
