package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/fintrack/internal/apperror"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestValidateSendsPayload(t *testing.T) {
	var got domain.ValidateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/validate.php", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"valid":true,"features":["reports"],"expires_at":1735689600000,"user_info":{"name":"Acme"}}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL+"/api/", srv.Client())
	resp, raw, err := c.Validate(context.Background(), domain.ValidateRequest{
		LicenseKey: "KEY",
		HardwareID: "hw",
		AppVersion: "1.0.0",
		Timestamp:  1700000000,
	})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, []string{"reports"}, resp.Features)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *resp.ExpiresAtTime())
	assert.Contains(t, string(raw), "Acme")
	assert.Equal(t, "KEY", got.LicenseKey)
	assert.Equal(t, int64(1700000000), got.Timestamp)
}

func TestValidateClassifiesFailuresAsNetwork(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status_500": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"html_body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		},
		"broken_json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"valid":tru`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, _, err := NewWithHTTPClient(srv.URL, srv.Client()).Validate(context.Background(), domain.ValidateRequest{LicenseKey: "KEY"})
			require.Error(t, err)
			assert.Equal(t, apperror.KindNetworkUnavailable, apperror.KindOf(err))
		})
	}
}

func TestValidateTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.URL, &http.Client{Timeout: 20 * time.Millisecond})
	_, _, err := c.Validate(context.Background(), domain.ValidateRequest{LicenseKey: "KEY"})
	require.Error(t, err)
	assert.Equal(t, apperror.KindNetworkUnavailable, apperror.KindOf(err))
}

func TestDeactivateUnreachable(t *testing.T) {
	c := NewWithHTTPClient("http://127.0.0.1:1", &http.Client{Timeout: 100 * time.Millisecond})
	err := c.Deactivate(context.Background(), domain.DeactivateRequest{LicenseKey: "KEY"})
	assert.Equal(t, apperror.KindNetworkUnavailable, apperror.KindOf(err))
}

func TestNewWarnsOnPlainHTTP(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)

	New(config.Config{License: config.LicenseConfig{Enabled: true, APIURL: "https://license.example.com/api"}}, log)
	assert.Equal(t, 0, logs.Len())

	New(config.Config{License: config.LicenseConfig{Enabled: true, APIURL: "http://license.example.com/api"}}, log)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "license.client.insecure_api_url", entry.Message)
	assert.Equal(t, "http://license.example.com/api", entry.ContextMap()["api_url"])
}

func TestIsHTTPS(t *testing.T) {
	assert.True(t, isHTTPS("https://license.example.com"))
	assert.True(t, isHTTPS(" HTTPS://license.example.com "))
	assert.False(t, isHTTPS("http://license.example.com"))
	assert.False(t, isHTTPS("license.example.com"))
	assert.False(t, isHTTPS("://bad"))
}
