package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	httphandler "github.com/ericfisherdev/cookiepool/internal/adapter/driving/http"
)

type poolClient struct {
	baseURL string
	http    *http.Client
}

func newClient(opts *options) *poolClient {
	return &poolClient{
		baseURL: strings.TrimRight(opts.serverURL, "/"),
		http: &http.Client{
			// Resolve and full health checks wait on child processes.
			Timeout: 10 * time.Minute,
		},
	}
}

// apiError is a non-2xx response decoded from the server's error body.
type apiError struct {
	status int
	body   httphandler.ErrorResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.status, e.body.Error)
	if e.body.Code != "" {
		msg += fmt.Sprintf(" (%s, %d attempts)", e.body.Code, e.body.Attempts)
	}
	return msg
}

// do sends the request and decodes the response into v when v is non-nil.
// Any status outside ok is returned as an *apiError.
func (c *poolClient) do(method, path string, body io.Reader, contentType string, v any, ok ...int) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(ok, resp.StatusCode) {
		data, _ := io.ReadAll(resp.Body)
		apiErr := &apiError{status: resp.StatusCode}
		if json.Unmarshal(data, &apiErr.body) != nil || apiErr.body.Error == "" {
			apiErr.body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *poolClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, "", v, http.StatusOK)
}

func (c *poolClient) sendJSON(method, path string, body, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	return c.do(method, path, bytes.NewReader(data), "application/json", v, http.StatusOK)
}

// upload posts files as repeated "cookies" parts. A 400 still carries a
// per-file report, so it is decoded rather than treated as a transport error.
func (c *poolClient) upload(paths []string) (httphandler.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return httphandler.UploadResponse{}, err
		}
		part, err := mw.CreateFormFile("cookies", filepath.Base(p))
		if err != nil {
			return httphandler.UploadResponse{}, err
		}
		if _, err := part.Write(data); err != nil {
			return httphandler.UploadResponse{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return httphandler.UploadResponse{}, err
	}

	var resp httphandler.UploadResponse
	err := c.do(http.MethodPost, "/api/v1/credentials", &buf, mw.FormDataContentType(), &resp,
		http.StatusCreated, http.StatusBadRequest)
	if err != nil {
		return httphandler.UploadResponse{}, err
	}
	if len(resp.Added) == 0 && len(resp.Failed) == 0 {
		return resp, errors.New("server rejected the upload")
	}
	return resp, nil
}
