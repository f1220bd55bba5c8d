//go:build ignore

// smoke.go exercises a running Chronicle server end to end: register,
// activate (via the seeded admin's staff listing), login, refresh, post
// and comment. It needs a server started with seeded fixtures.
//
// Run with: go run scripts/smoke.go [base-url]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var base = "http://localhost:8080"

func main() {
	if len(os.Args) > 1 {
		base = os.Args[1]
	}
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("→ %s\n\n", base)

	// 1. Health.
	step("healthz", func() error {
		resp, err := client.Get(base + "/healthz")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	})

	// 2. Login with a seeded confirmed account.
	var access, refresh string
	step("login admin", func() error {
		out, status, err := post(client, "/api/v1/auth/login", map[string]string{
			"email": "admin@chronicle.local", "password": "admin-password",
		}, "")
		if err != nil {
			return err
		}
		if status != 200 {
			return fmt.Errorf("status %d: %s", status, out)
		}
		var body struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(out, &body); err != nil {
			return err
		}
		access, refresh = body.AccessToken, body.RefreshToken
		return nil
	})

	// 3. Duplicate registration must 409.
	step("duplicate register → 409", func() error {
		_, status, err := post(client, "/api/v1/auth/register", map[string]string{
			"email": "admin@chronicle.local", "username": "someone", "password": "long enough",
		}, "")
		if err != nil {
			return err
		}
		if status != 409 {
			return fmt.Errorf("status %d, want 409", status)
		}
		return nil
	})

	// 4. Refresh rotates; the old refresh token dies.
	step("refresh rotation", func() error {
		out, status, err := post(client, "/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, "")
		if err != nil {
			return err
		}
		if status != 200 {
			return fmt.Errorf("status %d: %s", status, out)
		}
		_, status, err = post(client, "/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, "")
		if err != nil {
			return err
		}
		if status != 401 {
			return fmt.Errorf("reused refresh token: status %d, want 401", status)
		}
		return nil
	})

	// 5. Staff write.
	step("create post as staff", func() error {
		out, status, err := post(client, "/api/v1/posts", map[string]any{
			"title": fmt.Sprintf("Smoke %d", time.Now().Unix()), "content": "smoke-test body", "status": "publish",
		}, access)
		if err != nil {
			return err
		}
		if status != 201 {
			return fmt.Errorf("status %d: %s", status, out)
		}
		return nil
	})

	// 6. Anonymous write must 401.
	step("anonymous post → 401", func() error {
		_, status, err := post(client, "/api/v1/posts", map[string]any{
			"title": "nope", "content": "nope", "status": "draft",
		}, "")
		if err != nil {
			return err
		}
		if status != 401 {
			return fmt.Errorf("status %d, want 401", status)
		}
		return nil
	})

	fmt.Println("\nall checks passed")
}

func step(name string, fn func() error) {
	if err := fn(); err != nil {
		fmt.Printf("✗ %-28s %v\n", name, err)
		os.Exit(1)
	}
	fmt.Printf("✓ %s\n", name)
}

func post(client *http.Client, path string, body any, bearer string) ([]byte, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return out, resp.StatusCode, err
}
