package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/credentials"
)

func TestCredentialStatusMasksSecret(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.Pool = credentials.NewPool(credentials.Options{
		Keys:           []string{"AIzaSyExampleSecretKey01"},
		MaxUsagePerKey: 50,
		Logger:         zerolog.New(io.Discard),
	})

	rr := doJSON(t, app.CredentialStatus, http.MethodGet, "/v1/admin/credentials/status", "admin-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "AIzaSyExampleSecretKey01") {
		t.Fatal("response leaks the raw credential")
	}

	var status credentials.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if status.TotalCredentials != 1 {
		t.Fatalf("total = %d, want 1", status.TotalCredentials)
	}
	if !strings.HasPrefix(status.Credential, "AIza") || !strings.Contains(status.Credential, "****") {
		t.Fatalf("credential = %q, want masked form", status.Credential)
	}
}

func TestCredentialStatusWithoutPool(t *testing.T) {
	app, _, _ := newTestApp(t)

	rr := doJSON(t, app.CredentialStatus, http.MethodGet, "/v1/admin/credentials/status", "admin-1", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}
