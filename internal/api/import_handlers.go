package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/seedhypermedia/wxr-importer/internal/domain"
	"github.com/seedhypermedia/wxr-importer/internal/service"
)

func (s *Server) registerImportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:  "previewImport",
		Method:       http.MethodPost,
		Path:         "/api/v1/imports/preview",
		Summary:      "Preview WXR export",
		Description:  "Parses a WordPress export and summarizes what an import would contain",
		Tags:         []string{"Imports"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: s.maxUploadBytes,
	}, s.handlePreviewImport)

	huma.Register(s.api, huma.Operation{
		OperationID:   "startImport",
		Method:        http.MethodPost,
		Path:          "/api/v1/imports",
		Summary:       "Start import",
		Description:   "Parses a WordPress export, stores a new session and starts importing it in the background",
		Tags:          []string{"Imports"},
		Security:      []map[string][]string{{"bearer": {}}},
		MaxBodyBytes:  s.maxUploadBytes,
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "listImports",
		Method:      http.MethodGet,
		Path:        "/api/v1/imports",
		Summary:     "List imports",
		Description: "Lists every stored import session, newest first",
		Tags:        []string{"Imports"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListImports)

	huma.Register(s.api, huma.Operation{
		OperationID: "getActiveImport",
		Method:      http.MethodGet,
		Path:        "/api/v1/imports/active",
		Summary:     "Get active import",
		Description: "Gets the most recently started or resumed session",
		Tags:        []string{"Imports"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetActiveImport)

	huma.Register(s.api, huma.Operation{
		OperationID: "getImport",
		Method:      http.MethodGet,
		Path:        "/api/v1/imports/{id}",
		Summary:     "Get import",
		Description: "Gets the progress and results of one session",
		Tags:        []string{"Imports"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetImport)

	huma.Register(s.api, huma.Operation{
		OperationID:   "resumeImport",
		Method:        http.MethodPost,
		Path:          "/api/v1/imports/{id}/resume",
		Summary:       "Resume import",
		Description:   "Continues an interrupted or failed session from its first unimported post",
		Tags:          []string{"Imports"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusAccepted,
	}, s.handleResumeImport)

	huma.Register(s.api, huma.Operation{
		OperationID:   "cancelImport",
		Method:        http.MethodDelete,
		Path:          "/api/v1/imports/{id}",
		Summary:       "Cancel import",
		Description:   "Stops a running session and deletes its stored state",
		Tags:          []string{"Imports"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleCancelImport)
}

// WXRDocument carries an export inline as XML text.
type WXRDocument struct {
	WXR string `json:"wxr" minLength:"1" doc:"WordPress eXtended RSS export, as XML text"`
}

// PreviewImportInput contains parameters for previewing an export.
type PreviewImportInput struct {
	Body WXRDocument
}

// PreviewImportOutput contains the export summary.
type PreviewImportOutput struct {
	Body service.ImportPreview
}

// StartImportRequest is the request body for starting an import.
type StartImportRequest struct {
	WXR               string   `json:"wxr" minLength:"1" doc:"WordPress eXtended RSS export, as XML text"`
	DestinationUID    string   `json:"destinationUid" doc:"Account that receives the documents"`
	DestinationPath   []string `json:"destinationPath,omitempty" doc:"Path segments prepended to every document path"`
	PublisherKeyName  string   `json:"publisherKeyName" doc:"Daemon key that signs ghostwritten documents and capabilities"`
	Mode              string   `json:"mode,omitempty" enum:"ghostwritten,authored" doc:"Who signs imported documents (default ghostwritten)"`
	OverwriteExisting bool     `json:"overwriteExisting,omitempty" doc:"Replace documents that already exist at a target path"`
	Password          string   `json:"password,omitempty" doc:"Encrypts the stored import file, which then needs the password to resume"`
}

// StartImportInput contains parameters for starting an import.
type StartImportInput struct {
	Body StartImportRequest
}

// ImportAccepted identifies a session whose run was started.
type ImportAccepted struct {
	ImportID string `json:"importId" doc:"Session identifier"`
}

// ImportAcceptedOutput wraps ImportAccepted for Huma.
type ImportAcceptedOutput struct {
	Body ImportAccepted
}

// ImportResponse is one session as returned by the API.
type ImportResponse struct {
	domain.ImportState
	Running bool `json:"running" doc:"Whether a run of this session is in flight"`
}

// ImportOutput wraps a single session.
type ImportOutput struct {
	Body ImportResponse
}

// ListImportsResponse contains every stored session.
type ListImportsResponse struct {
	Imports []ImportResponse `json:"imports" doc:"Sessions, newest first"`
}

// ListImportsOutput wraps ListImportsResponse for Huma.
type ListImportsOutput struct {
	Body ListImportsResponse
}

// ImportIDInput addresses one session.
type ImportIDInput struct {
	ID string `path:"id" doc:"Session identifier"`
}

// ResumeImportRequest is the request body for resuming a session.
type ResumeImportRequest struct {
	Password string `json:"password,omitempty" doc:"Password of an encrypted session"`
}

// ResumeImportInput contains parameters for resuming a session.
type ResumeImportInput struct {
	ID   string               `path:"id" doc:"Session identifier, or \"active\" for the active session"`
	Body *ResumeImportRequest `required:"false"`
}

// CancelImportOutput has no body.
type CancelImportOutput struct{}

func (s *Server) handlePreviewImport(ctx context.Context, input *PreviewImportInput) (*PreviewImportOutput, error) {
	if _, err := GetOperator(ctx); err != nil {
		return nil, err
	}

	preview, err := s.services.Imports.Preview(ctx, strings.NewReader(input.Body.WXR))
	if err != nil {
		return nil, toAPIError(err)
	}
	return &PreviewImportOutput{Body: *preview}, nil
}

func (s *Server) handleStartImport(ctx context.Context, input *StartImportInput) (*ImportAcceptedOutput, error) {
	operator, err := GetOperator(ctx)
	if err != nil {
		return nil, err
	}

	req := input.Body
	importID, err := s.services.Imports.Start(ctx, service.StartOptions{
		Source:            strings.NewReader(req.WXR),
		DestinationUID:    req.DestinationUID,
		DestinationPath:   req.DestinationPath,
		PublisherKeyName:  req.PublisherKeyName,
		Mode:              domain.ImportMode(req.Mode),
		OverwriteExisting: req.OverwriteExisting,
		Password:          req.Password,
	})
	if err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("import started over API",
		slog.String("import_id", importID),
		slog.String("operator", operator),
	)
	return &ImportAcceptedOutput{Body: ImportAccepted{ImportID: importID}}, nil
}

func (s *Server) handleListImports(ctx context.Context, _ *struct{}) (*ListImportsOutput, error) {
	if _, err := GetOperator(ctx); err != nil {
		return nil, err
	}

	states, err := s.services.Imports.List(ctx)
	if err != nil {
		return nil, toAPIError(err)
	}

	out := &ListImportsOutput{}
	out.Body.Imports = make([]ImportResponse, 0, len(states))
	for _, st := range states {
		out.Body.Imports = append(out.Body.Imports, s.toImportResponse(st))
	}
	return out, nil
}

func (s *Server) handleGetActiveImport(ctx context.Context, _ *struct{}) (*ImportOutput, error) {
	if _, err := GetOperator(ctx); err != nil {
		return nil, err
	}

	state, err := s.services.Imports.ActiveImport(ctx)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ImportOutput{Body: s.toImportResponse(state)}, nil
}

func (s *Server) handleGetImport(ctx context.Context, input *ImportIDInput) (*ImportOutput, error) {
	if _, err := GetOperator(ctx); err != nil {
		return nil, err
	}

	state, err := s.services.Imports.Status(ctx, input.ID)
	if err != nil {
		return nil, toAPIError(err)
	}
	return &ImportOutput{Body: s.toImportResponse(state)}, nil
}

func (s *Server) handleResumeImport(ctx context.Context, input *ResumeImportInput) (*ImportAcceptedOutput, error) {
	operator, err := GetOperator(ctx)
	if err != nil {
		return nil, err
	}

	id := input.ID
	if id == "active" {
		id = ""
	}

	var password string
	if input.Body != nil {
		password = input.Body.Password
	}

	importID, err := s.services.Imports.ResumeAsync(ctx, id, password, nil)
	if err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("import resumed over API",
		slog.String("import_id", importID),
		slog.String("operator", operator),
	)
	return &ImportAcceptedOutput{Body: ImportAccepted{ImportID: importID}}, nil
}

func (s *Server) handleCancelImport(ctx context.Context, input *ImportIDInput) (*CancelImportOutput, error) {
	operator, err := GetOperator(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Imports.Cancel(ctx, input.ID); err != nil {
		return nil, toAPIError(err)
	}

	s.logger.Info("import canceled over API",
		slog.String("import_id", input.ID),
		slog.String("operator", operator),
	)
	return &CancelImportOutput{}, nil
}

func (s *Server) toImportResponse(state *domain.ImportState) ImportResponse {
	return ImportResponse{
		ImportState: *state,
		Running:     s.services.Imports.IsRunning(state.ImportID),
	}
}
