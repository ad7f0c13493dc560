package api

import (
	"github.com/seedhypermedia/wxr-importer/internal/auth"
	"github.com/seedhypermedia/wxr-importer/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Imports *service.ImportService
	Tokens  *auth.TokenService
}
