package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/naka-gawa/repo-pulse/internal/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockVersionReader struct {
	mock.Mock
}

func (m *mockVersionReader) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func TestVersionHandler(t *testing.T) {
	testCases := []struct {
		name           string
		version        string
		versionErr     error
		noPool         bool
		expectedStatus int
		expectedBody   map[string]string
	}{
		{
			name:           "happy path - returns version",
			version:        "PostgreSQL 16.2",
			expectedStatus: 200,
			expectedBody:   map[string]string{"version": "PostgreSQL 16.2"},
		},
		{
			name:           "no pool",
			noPool:         true,
			expectedStatus: 503,
			expectedBody:   map[string]string{"detail": "Database connection pool is not initialized"},
		},
		{
			name:           "query failure",
			versionErr:     errors.New("failed to query database version: connection reset"),
			expectedStatus: 500,
			expectedBody:   map[string]string{"detail": "Failed to fetch database version"},
		},
		{
			name:           "empty result",
			versionErr:     storage.ErrVersionNotFound,
			expectedStatus: 404,
			expectedBody:   map[string]string{"detail": "Database version not found"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			var reader VersionReader
			if !tc.noPool {
				m := new(mockVersionReader)
				m.On("Version", mock.Anything).Return(tc.version, tc.versionErr)
				reader = m
			}
			app := New(reader, logger)

			resp, err := app.Test(httptest.NewRequest("GET", "/api/db_version", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.expectedBody, body)
		})
	}
}
