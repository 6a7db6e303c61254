// Package e2e provides end-to-end browser smoke tests for a deployed
// instance. They drive a headless Chrome through chromedp and only run when
// E2E_BASE_URL is set, because they submit a real contact form.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// getBaseURL returns the instance under test or skips the test.
func getBaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("E2E_BASE_URL")
	if url == "" {
		t.Skip("E2E_BASE_URL not set")
	}
	return strings.TrimRight(url, "/")
}

// setupBrowser creates a new chromedp browser context with appropriate settings.
// It returns the context, cancel function, and any error.
func setupBrowser(headless bool) (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			// Only log important messages in tests
			if strings.Contains(format, "error") || strings.Contains(format, "Error") {
				fmt.Printf("[chromedp] "+format+"\n", args...)
			}
		}),
	)

	// Set a timeout for the entire browser session
	ctx, timeoutCancel := context.WithTimeout(ctx, 2*time.Minute)

	cancelAll := func() {
		timeoutCancel()
		cancel()
		allocCancel()
	}

	return ctx, cancelAll, nil
}

// isHeadless returns true if we should run in headless mode.
// Defaults to true, can be overridden with E2E_HEADLESS=false.
func isHeadless() bool {
	if val := os.Getenv("E2E_HEADLESS"); val == "false" {
		return false
	}
	return true
}

// awaitPromise makes Evaluate wait for a returned promise to settle.
func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// fetchResult is what the in-page fetch helper returns.
type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// fetchJSON runs fetch() inside the page so the request carries the browser's origin.
func fetchJSON(ctx context.Context, method, url, body string) (*fetchResult, error) {
	script := fmt.Sprintf(`
		fetch(%q, {
			method: %q,
			headers: {"Content-Type": "application/json"},
			body: %s
		}).then(async (res) => ({status: res.status, body: await res.text()}))
	`, url, method, jsBody(body))

	var result fetchResult
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &result, awaitPromise)); err != nil {
		return nil, err
	}
	return &result, nil
}

func jsBody(body string) string {
	if body == "" {
		return "undefined"
	}
	return fmt.Sprintf("%q", body)
}

// TestHealthEndpoint verifies that the health endpoint is working.
func TestHealthEndpoint(t *testing.T) {
	baseURL := getBaseURL(t)
	t.Logf("Testing health endpoint at: %s", baseURL)

	ctx, cancel, err := setupBrowser(isHeadless())
	if err != nil {
		t.Fatalf("Failed to setup browser: %v", err)
	}
	defer cancel()

	var bodyText string
	err = chromedp.Run(ctx,
		chromedp.Navigate(baseURL+"/api/healthz"),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &bodyText),
	)
	if err != nil {
		t.Fatalf("Failed to check health endpoint: %v", err)
	}

	if !strings.Contains(bodyText, "healthy") {
		t.Errorf("Expected health check to return 'healthy', got: %s", bodyText)
	}

	t.Logf("Health check response: %s", bodyText)
}

// TestStoreHealthEndpoint verifies the contact store can be read.
func TestStoreHealthEndpoint(t *testing.T) {
	baseURL := getBaseURL(t)

	ctx, cancel, err := setupBrowser(isHeadless())
	if err != nil {
		t.Fatalf("Failed to setup browser: %v", err)
	}
	defer cancel()

	var bodyText string
	err = chromedp.Run(ctx,
		chromedp.Navigate(baseURL+"/api/healthz/store"),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &bodyText),
	)
	if err != nil {
		t.Fatalf("Failed to check store health endpoint: %v", err)
	}

	var health struct {
		Status   string `json:"status"`
		Readable bool   `json:"readable"`
	}
	if err := json.Unmarshal([]byte(bodyText), &health); err != nil {
		t.Fatalf("Store health did not return JSON: %v (%s)", err, bodyText)
	}
	if health.Status != "healthy" || !health.Readable {
		t.Errorf("Expected a readable store, got: %s", bodyText)
	}
}

// TestSwaggerUILoads verifies the API documentation page renders.
func TestSwaggerUILoads(t *testing.T) {
	baseURL := getBaseURL(t)

	ctx, cancel, err := setupBrowser(isHeadless())
	if err != nil {
		t.Fatalf("Failed to setup browser: %v", err)
	}
	defer cancel()

	var nodes []*cdp.Node
	err = chromedp.Run(ctx,
		chromedp.Navigate(baseURL+"/swagger/index.html"),
		chromedp.WaitReady("body"),
		chromedp.Nodes("#swagger-ui", &nodes, chromedp.ByQuery),
	)
	if err != nil {
		t.Fatalf("Failed to load swagger UI: %v", err)
	}

	if len(nodes) == 0 {
		t.Error("Expected the swagger UI container to be present")
	}
}

// TestContactFormSubmission posts the public form from a browser page.
func TestContactFormSubmission(t *testing.T) {
	baseURL := getBaseURL(t)

	ctx, cancel, err := setupBrowser(isHeadless())
	if err != nil {
		t.Fatalf("Failed to setup browser: %v", err)
	}
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate(baseURL+"/api/"), chromedp.WaitReady("body")); err != nil {
		t.Fatalf("Failed to open base page: %v", err)
	}

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{
			name:           "valid submission",
			body:           fmt.Sprintf(`{"name":"E2E","email":"e2e+%d@example.com","message":"Automated smoke test, please ignore"}`, time.Now().Unix()),
			expectedStatus: 200,
		},
		{
			name:           "missing message",
			body:           `{"name":"E2E","email":"e2e@example.com","message":""}`,
			expectedStatus: 400,
		},
		{
			name:           "invalid email",
			body:           `{"name":"E2E","email":"not-an-address","message":"Hi"}`,
			expectedStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := fetchJSON(ctx, "POST", baseURL+"/api/contact", tt.body)
			if err != nil {
				t.Fatalf("Failed to submit contact form: %v", err)
			}
			if result.Status != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, result.Status, result.Body)
			}
		})
	}
}

// TestAdminRequiresLogin verifies admin routes reject anonymous callers.
func TestAdminRequiresLogin(t *testing.T) {
	baseURL := getBaseURL(t)

	ctx, cancel, err := setupBrowser(isHeadless())
	if err != nil {
		t.Fatalf("Failed to setup browser: %v", err)
	}
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Navigate(baseURL+"/api/"), chromedp.WaitReady("body")); err != nil {
		t.Fatalf("Failed to open base page: %v", err)
	}

	for _, path := range []string{"/api/admin/contacts", "/api/admin/diagnose", "/api/admin/email-service"} {
		result, err := fetchJSON(ctx, "GET", baseURL+path, "")
		if err != nil {
			t.Fatalf("Failed to call %s: %v", path, err)
		}
		if result.Status != 401 {
			t.Errorf("Expected 401 from %s, got %d", path, result.Status)
		}
	}

	result, err := fetchJSON(ctx, "POST", baseURL+"/api/admin/login", `{"username":"nobody","password":"wrong"}`)
	if err != nil {
		t.Fatalf("Failed to call login: %v", err)
	}
	if result.Status != 401 {
		t.Errorf("Expected 401 for bad credentials, got %d: %s", result.Status, result.Body)
	}
}
