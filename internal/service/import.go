package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/daemon"
	"github.com/seedhypermedia/wxr-importer/internal/domain"
	domainerrors "github.com/seedhypermedia/wxr-importer/internal/errors"
	"github.com/seedhypermedia/wxr-importer/internal/id"
	"github.com/seedhypermedia/wxr-importer/internal/importfile"
	"github.com/seedhypermedia/wxr-importer/internal/media"
	"github.com/seedhypermedia/wxr-importer/internal/sse"
	"github.com/seedhypermedia/wxr-importer/internal/store"
	"github.com/seedhypermedia/wxr-importer/internal/validation"
	"github.com/seedhypermedia/wxr-importer/internal/wxr"
)

// ProgressFunc receives progress updates of one import run. It is called from
// the run's goroutine.
type ProgressFunc func(sse.ProgressEventData)

// Collaborators are the external services an import drives.
type Collaborators struct {
	Keys      daemon.KeyService
	Documents daemon.DocumentService
	Access    daemon.AccessControl
	Converter blocks.Converter

	// Images rehosts post images. Nil keeps image URLs as they are.
	Images *media.Rehoster
}

// StartOptions configures a new import.
type StartOptions struct {
	Source            io.Reader         `json:"-" validate:"required"`
	DestinationUID    string            `json:"destinationUid" validate:"required"`
	DestinationPath   []string          `json:"destinationPath" validate:"dive,pathsegment"`
	PublisherKeyName  string            `json:"publisherKeyName" validate:"required"`
	Mode              domain.ImportMode `json:"mode" validate:"importmode"`
	OverwriteExisting bool              `json:"overwriteExisting"`

	// Password encrypts the stored import file. Resuming then requires it.
	Password string `json:"-"`

	OnProgress ProgressFunc `json:"-"`
}

// ImportService runs WordPress imports. Each session is executed by a single
// goroutine and at most one session runs at a time.
type ImportService struct {
	store     *store.Store
	keys      daemon.KeyService
	documents daemon.DocumentService
	access    daemon.AccessControl
	converter blocks.Converter
	images    *media.Rehoster
	emitter   store.EventEmitter
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time

	// Run lifecycle
	ctx    context.Context //nolint:containedctx // Parent of every run, canceled on shutdown
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*importRun
	closed bool
}

type importRun struct {
	ctx    context.Context //nolint:containedctx // Canceled by Cancel and Shutdown
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewImportService creates an import service. A nil emitter disables event broadcasting.
func NewImportService(
	st *store.Store,
	collab Collaborators,
	emitter store.EventEmitter,
	logger *slog.Logger,
) *ImportService {
	if emitter == nil {
		emitter = store.NewNoopEmitter()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ImportService{
		store:     st,
		keys:      collab.Keys,
		documents: collab.Documents,
		access:    collab.Access,
		converter: collab.Converter,
		images:    collab.Images,
		emitter:   emitter,
		validator: validation.New(),
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[string]*importRun),
	}
}

// Start parses the export, persists a new session and runs it in the
// background. It returns once the session is stored.
func (s *ImportService) Start(ctx context.Context, opts StartOptions) (string, error) {
	if opts.Mode == "" {
		opts.Mode = domain.ModeGhostwritten
	}
	if err := s.validator.Validate(opts); err != nil {
		return "", err
	}

	importID, err := id.NewImportID()
	if err != nil {
		return "", fmt.Errorf("generate import id: %w", err)
	}

	// The slot is held while parsing so a concurrent Start or Resume cannot
	// store a session or move the active pointer.
	run, err := s.reserve(importID)
	if err != nil {
		return "", err
	}
	launched := false
	defer func() {
		if !launched {
			s.release(importID, run, nil)
		}
	}()

	s.report(opts.OnProgress, sse.ProgressEventData{ImportID: importID, Phase: domain.PhaseParsing})
	parsed, err := wxr.Parse(opts.Source)
	if err != nil {
		return "", domainerrors.Validation("could not parse WordPress export").WithCause(err)
	}

	data, err := s.createImportData(ctx, parsed, opts.Mode)
	if err != nil {
		return "", fmt.Errorf("build import data: %w", err)
	}

	file, err := importfile.Create(data, opts.Password)
	if err != nil {
		return "", fmt.Errorf("create import file: %w", err)
	}

	state := &domain.ImportState{
		ImportID:          importID,
		IsAuthored:        opts.Mode == domain.ModeAuthored,
		DestinationUID:    opts.DestinationUID,
		DestinationPath:   slices.Clone(opts.DestinationPath),
		PublisherKeyName:  opts.PublisherKeyName,
		OverwriteExisting: opts.OverwriteExisting,
		Phase:             domain.PhasePending,
		TotalPosts:        len(data.Posts),
		Results:           domain.NewImportResults(),
		Encrypted:         file.Encrypted,
		SiteTitle:         data.Source.SiteTitle,
		CreatedAt:         s.now(),
	}
	if state.DestinationPath == nil {
		state.DestinationPath = []string{}
	}
	if err := s.store.CreateImport(ctx, state, file); err != nil {
		return "", fmt.Errorf("save import: %w", err)
	}

	s.logger.Info("import started",
		"import_id", importID,
		"site", data.Source.SiteURL,
		"posts", len(data.Posts),
		"mode", opts.Mode,
		"encrypted", file.Encrypted,
	)

	s.launch(run, state, data, opts.OnProgress)
	launched = true
	return importID, nil
}

// Resume continues a session and blocks until the run ends. An empty id
// resumes the active session. Canceling ctx stops the run; the session stays
// resumable.
func (s *ImportService) Resume(ctx context.Context, importID, password string, onProgress ProgressFunc) error {
	_, run, err := s.resume(ctx, importID, password, onProgress)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, run.cancel)
	defer stop()

	<-run.done
	return run.err
}

// ResumeAsync decodes the session synchronously, so password and lookup errors
// reach the caller, then continues it in the background. It returns the id of
// the resumed session.
func (s *ImportService) ResumeAsync(ctx context.Context, importID, password string, onProgress ProgressFunc) (string, error) {
	resumed, _, err := s.resume(ctx, importID, password, onProgress)
	return resumed, err
}

func (s *ImportService) resume(ctx context.Context, importID, password string, onProgress ProgressFunc) (string, *importRun, error) {
	importID, err := s.resolveID(ctx, importID)
	if err != nil {
		return "", nil, err
	}

	run, err := s.reserve(importID)
	if err != nil {
		return "", nil, err
	}

	state, data, err := s.prepareResume(ctx, importID, password)
	if err != nil {
		s.release(importID, run, err)
		return "", nil, err
	}
	s.launch(run, state, data, onProgress)
	return importID, run, nil
}

// prepareResume loads a session and its data and re-applies processed posts
// recorded in the state but not yet in the file.
func (s *ImportService) prepareResume(ctx context.Context, importID, password string) (*domain.ImportState, *domain.SeedImportData, error) {
	state, err := s.Status(ctx, importID)
	if err != nil {
		return nil, nil, err
	}
	if state.Phase == domain.PhaseComplete {
		return nil, nil, domainerrors.Conflictf("import %s is already complete", importID)
	}

	file, err := s.store.GetImportFile(ctx, importID)
	if errors.Is(err, store.ErrImportFileNotFound) {
		return nil, nil, domainerrors.NotFoundf("import file for %s not found", importID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load import file: %w", err)
	}

	data, err := importfile.Decode(file, password)
	if err != nil {
		return nil, nil, decodeError(err)
	}

	data.MarkProcessed(state.ProcessedPostIDs...)
	state.ImportedPosts = data.ProcessedCount()
	state.TotalPosts = len(data.Posts)
	if state.Results == nil {
		state.Results = domain.NewImportResults()
	}

	if err := s.store.SetActiveImport(ctx, importID); err != nil {
		return nil, nil, fmt.Errorf("activate import: %w", err)
	}

	s.logger.Info("import resumed",
		"import_id", importID,
		"phase", state.Phase,
		"processed", state.ImportedPosts,
		"total", state.TotalPosts,
	)
	return state, data, nil
}

// resolveID returns importID, or the active session's id when it is empty.
func (s *ImportService) resolveID(ctx context.Context, importID string) (string, error) {
	if importID != "" {
		return importID, nil
	}
	active, err := s.store.GetActiveImportID(ctx)
	if errors.Is(err, store.ErrNoActiveImport) {
		return "", domainerrors.NotFound("no import to resume")
	}
	if err != nil {
		return "", fmt.Errorf("get active import: %w", err)
	}
	return active, nil
}

func decodeError(err error) error {
	switch {
	case errors.Is(err, importfile.ErrPasswordRequired):
		return domainerrors.PasswordRequired("import file is encrypted, password required")
	case errors.Is(err, importfile.ErrDecryptFailed):
		return domainerrors.Validation("incorrect password").WithCause(err)
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "could not read import file")
	}
}

// reserve claims the single run slot for importID. The slot is released by
// release, or when the run started by launch ends.
func (s *ImportService) reserve(importID string) (*importRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domainerrors.Unavailable("import service is shutting down")
	}
	for running := range s.runs {
		return nil, domainerrors.Conflictf("import %s is still running", running)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	run := &importRun{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.runs[importID] = run
	s.wg.Add(1)
	return run, nil
}

// release frees the slot of importID and ends its run with err.
func (s *ImportService) release(importID string, run *importRun, err error) {
	run.cancel()

	s.mu.Lock()
	delete(s.runs, importID)
	s.mu.Unlock()

	run.err = err
	close(run.done)
	s.wg.Done()
}

// launch starts the reserved run in the background.
func (s *ImportService) launch(run *importRun, state *domain.ImportState, data *domain.SeedImportData, onProgress ProgressFunc) {
	go func() {
		err := s.executeImport(run.ctx, state, data, onProgress)
		switch {
		case err == nil:
		case run.ctx.Err() != nil:
			s.logger.Info("import stopped", "import_id", state.ImportID, "processed", state.ImportedPosts)
		default:
			s.logger.Error("import failed", "import_id", state.ImportID, "error", err)
		}
		s.release(state.ImportID, run, err)
	}()
}

// IsRunning reports whether importID has a run in flight.
func (s *ImportService) IsRunning(importID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[importID]
	return ok
}

// Wait blocks until the run of importID ends and returns its error. It
// returns nil immediately when nothing is running.
func (s *ImportService) Wait(ctx context.Context, importID string) error {
	s.mu.Lock()
	run := s.runs[importID]
	s.mu.Unlock()
	if run == nil {
		return nil
	}

	select {
	case <-run.done:
		return run.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops a session's run, if any, and deletes its records.
func (s *ImportService) Cancel(ctx context.Context, importID string) error {
	if _, err := s.Status(ctx, importID); err != nil {
		return err
	}

	s.mu.Lock()
	run := s.runs[importID]
	s.mu.Unlock()

	if run != nil {
		run.cancel()
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.store.ClearImport(ctx, importID); err != nil {
		return fmt.Errorf("clear import: %w", err)
	}
	s.logger.Info("import canceled", "import_id", importID)
	return nil
}

// Status returns the stored state of a session.
func (s *ImportService) Status(ctx context.Context, importID string) (*domain.ImportState, error) {
	state, err := s.store.GetImportState(ctx, importID)
	if errors.Is(err, store.ErrImportNotFound) {
		return nil, domainerrors.NotFoundf("import %s not found", importID)
	}
	if err != nil {
		return nil, fmt.Errorf("get import state: %w", err)
	}
	return state, nil
}

// ActiveImport returns the state of the most recently started or resumed session.
func (s *ImportService) ActiveImport(ctx context.Context) (*domain.ImportState, error) {
	active, err := s.store.GetActiveImportID(ctx)
	if errors.Is(err, store.ErrNoActiveImport) {
		return nil, domainerrors.NotFound("no active import")
	}
	if err != nil {
		return nil, fmt.Errorf("get active import: %w", err)
	}
	return s.Status(ctx, active)
}

// HasActiveImport reports whether the active session can be resumed.
func (s *ImportService) HasActiveImport(ctx context.Context) (bool, error) {
	active, err := s.store.GetActiveImportID(ctx)
	if errors.Is(err, store.ErrNoActiveImport) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get active import: %w", err)
	}
	return s.store.HasResumableImport(ctx, active)
}

// List returns every stored session, newest first.
func (s *ImportService) List(ctx context.Context) ([]*domain.ImportState, error) {
	states, err := s.store.ListImportStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	return states, nil
}

// Shutdown cancels every run and waits for them to stop. Interrupted
// sessions stay resumable.
func (s *ImportService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("stopping import service")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("import service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for import runs: %w", ctx.Err())
	}
}

// report broadcasts a progress event and forwards it to fn.
func (s *ImportService) report(fn ProgressFunc, p sse.ProgressEventData) {
	s.emitter.Emit(sse.NewProgressEvent(p))
	if fn != nil {
		fn(p)
	}
}
