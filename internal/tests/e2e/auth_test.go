//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fitpick/apiserver/config"
	"github.com/fitpick/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

var providerStub *httptest.Server

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	providerStub = newProviderStub()

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		providerStub.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		providerStub.Close()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	providerStub.Close()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAuthAndGenerationFlow(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("amy_%d", time.Now().UnixNano())
	email := fmt.Sprintf("%s@example.com", username)

	signupStatus, signupBody := postJSON(t, baseURL+"/auth/signup", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "secret1",
	})
	if signupStatus != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", signupStatus, signupBody)
	}
	signupResp := decodeAuth(t, signupBody)

	signinStatus, signinBody := postJSON(t, baseURL+"/auth/signin", "", map[string]string{
		"username": email,
		"password": "secret1",
	})
	if signinStatus != http.StatusOK {
		t.Fatalf("signin status = %d: %s", signinStatus, signinBody)
	}
	signinResp := decodeAuth(t, signinBody)
	if signinResp.Token == "" {
		t.Fatalf("signin returned no token")
	}

	meStatus, meBody := getWithToken(t, baseURL+"/auth/me", signinResp.Token)
	if meStatus != http.StatusOK {
		t.Fatalf("me status = %d: %s", meStatus, meBody)
	}
	if !strings.Contains(meBody, username) || !strings.Contains(meBody, email) {
		t.Fatalf("me body = %s", meBody)
	}

	genStatus, genBody := postJSON(t, baseURL+"/outfits/generate", signupResp.Token, map[string]string{
		"season": "winter",
		"event":  "date-night",
	})
	if genStatus != http.StatusOK {
		t.Fatalf("generate status = %d: %s", genStatus, genBody)
	}
	if !strings.Contains(genBody, "outfit") || !strings.Contains(genBody, username) {
		t.Fatalf("generate body = %s", genBody)
	}

	histStatus, histBody := getWithToken(t, baseURL+"/outfits/history", signupResp.Token)
	if histStatus != http.StatusOK {
		t.Fatalf("history status = %d: %s", histStatus, histBody)
	}
	if !strings.Contains(histBody, "date-night") {
		t.Fatalf("history body = %s", histBody)
	}
}

func TestDuplicateEmailSignup(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	username := fmt.Sprintf("dup_%d", time.Now().UnixNano())
	email := fmt.Sprintf("%s@example.com", username)

	status, body := postJSON(t, baseURL+"/auth/signup", "", map[string]string{
		"username": username,
		"email":    email,
		"password": "secret1",
	})
	if status != http.StatusCreated {
		t.Fatalf("first signup status = %d: %s", status, body)
	}

	status, body = postJSON(t, baseURL+"/auth/signup", "", map[string]string{
		"username": username + "x",
		"email":    email,
		"password": "secret1",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("second signup status = %d, want 400", status)
	}
	if !strings.Contains(body, "Email already registered") {
		t.Fatalf("second signup body = %s", body)
	}
}

func TestGenerateRejectsBadCredentials(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)

	status, _ := postJSON(t, baseURL+"/outfits/generate", "", map[string]string{
		"season": "winter",
		"event":  "date-night",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", status)
	}

	status, _ = postJSON(t, baseURL+"/outfits/generate", "garbage-token", map[string]string{
		"season": "winter",
		"event":  "date-night",
	})
	if status != http.StatusForbidden {
		t.Fatalf("garbage token status = %d, want 403", status)
	}

	username := fmt.Sprintf("gen_%d", time.Now().UnixNano())
	created, body := postJSON(t, baseURL+"/auth/signup", "", map[string]string{
		"username": username,
		"email":    fmt.Sprintf("%s@example.com", username),
		"password": "secret1",
	})
	if created != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", created, body)
	}
	token := decodeAuth(t, body).Token

	status, body = postJSON(t, baseURL+"/outfits/generate", token, map[string]string{
		"event": "date-night",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("missing season status = %d: %s", status, body)
	}
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

func decodeAuth(t *testing.T, body string) authResponse {
	t.Helper()
	var parsed authResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return parsed
}

func postJSON(t *testing.T, url, token string, payload map[string]string) (int, string) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func getWithToken(t *testing.T, url, token string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body))
}

// newProviderStub stands in for the OpenAI API so e2e runs need no
// network credential.
func newProviderStub() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"top":"wool coat","bottom":"dark jeans","shoes":"chelsea boots","accessories":"scarf, watch","style_tip":"layers for warmth"}`,
				}},
			},
		})
	}))
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	dsn := buildPostgresURL(cfg)
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func buildPostgresURL(cfg config.Config) string {
	sslmode := "disable"
	if cfg.Database.UseSSL {
		sslmode = "require"
	}
	host := fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		host,
		cfg.Database.DBName,
		sslmode,
	)
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "fitpick")
	_ = os.Setenv("DB_PASSWORD", "fitpick")
	_ = os.Setenv("DB_NAME", "fitpick")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("OPENAI_API_KEY", "test-key")
}

func startServer() (*server.Server, error) {
	_ = os.Setenv("OPENAI_BASE_URL", providerStub.URL)

	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
