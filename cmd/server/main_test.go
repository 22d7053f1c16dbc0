package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storedash/backend/internal/archive"
	"storedash/backend/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{"short secret", config.Config{AuthSecret: "short", ArchiveBackend: config.BackendFS, ReportsDir: "data"}, true},
		{"filesystem ok", config.Config{AuthSecret: strongSecret, ArchiveBackend: config.BackendFS, ReportsDir: "data"}, false},
		{"filesystem without dir", config.Config{AuthSecret: strongSecret, ArchiveBackend: config.BackendFS}, true},
		{"s3 without bucket", config.Config{AuthSecret: strongSecret, ArchiveBackend: config.BackendS3, S3AccessKey: "k", S3SecretKey: "s"}, true},
		{"s3 without keys", config.Config{AuthSecret: strongSecret, ArchiveBackend: config.BackendS3, S3Bucket: "reports"}, true},
		{"s3 ok", config.Config{AuthSecret: strongSecret, ArchiveBackend: config.BackendS3, S3Bucket: "reports", S3AccessKey: "k", S3SecretKey: "s"}, false},
		{"unknown backend", config.Config{AuthSecret: strongSecret, ArchiveBackend: "ftp"}, true},
		{"wildcard origin in production", config.Config{AuthSecret: strongSecret, ArchiveBackend: config.BackendFS, ReportsDir: "data", Env: "production", AllowedOrigin: "*"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(tc.cfg)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewArchiveBackendFilesystem(t *testing.T) {
	dir := t.TempDir()

	backend, err := newArchiveBackend(context.Background(), config.Config{ArchiveBackend: config.BackendFS, ReportsDir: dir}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &archive.FSBackend{}, backend)
}
