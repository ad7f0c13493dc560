package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/seedhypermedia/wxr-importer/internal/errors"
	"github.com/seedhypermedia/wxr-importer/internal/validation"
)

type startRequest struct {
	DestinationUID  string   `json:"destinationUid" validate:"required"`
	DestinationPath []string `json:"destinationPath" validate:"dive,pathsegment"`
	Mode            string   `json:"mode" validate:"importmode"`
	Password        string   `json:"password,omitempty" validate:"omitempty,min=8"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(startRequest{
		DestinationUID:  "z6Mk",
		DestinationPath: []string{"blog", "imported"},
		Mode:            "authored",
	})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       startRequest
		wantField string
	}{
		{
			name:      "missing destination",
			req:       startRequest{Mode: "ghostwritten"},
			wantField: "destinationUid",
		},
		{
			name:      "slash in path segment",
			req:       startRequest{DestinationUID: "z6Mk", DestinationPath: []string{"ok", "a/b"}, Mode: "ghostwritten"},
			wantField: "destinationPath[1]",
		},
		{
			name:      "empty path segment",
			req:       startRequest{DestinationUID: "z6Mk", DestinationPath: []string{" "}, Mode: "ghostwritten"},
			wantField: "destinationPath[0]",
		},
		{
			name:      "unknown mode",
			req:       startRequest{DestinationUID: "z6Mk", Mode: "cowritten"},
			wantField: "mode",
		},
		{
			name:      "short password",
			req:       startRequest{DestinationUID: "z6Mk", Mode: "authored", Password: "short"},
			wantField: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}
