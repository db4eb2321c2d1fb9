package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/config"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
)

func testConfig() config.WarehouseConfig {
	return config.WarehouseConfig{
		WorkspaceURL: "https://example.cloud.databricks.com",
		WarehouseID:  "wh-1",
		Token:        "token",
		PollInterval: time.Millisecond,
		MaxWait:      100 * time.Millisecond,
	}
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func manifestFor(columns ...string) map[string]any {
	cols := make([]map[string]any, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, map[string]any{"name": c, "type_text": "STRING"})
	}
	return map[string]any{"schema": map[string]any{"columns": cols}}
}

func TestExecuteImmediateSuccess(t *testing.T) {
	client := NewClient(testConfig(), nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/2.0/sql/statements" {
			t.Fatalf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer token" {
			t.Fatalf("unexpected auth header: %s", got)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"statement_id": "stmt-1",
			"status":       map[string]any{"state": "SUCCEEDED"},
			"manifest":     manifestFor("run_id", "result_state"),
			"result": map[string]any{
				"data_array": [][]any{{"123", "FAILED"}},
			},
		}), nil
	})

	rows, err := client.Execute(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0]["run_id"] != "123" || rows[0]["result_state"] != "FAILED" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestExecutePollsUntilSucceeded(t *testing.T) {
	polls := 0
	client := NewClient(testConfig(), nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			return jsonResponse(t, http.StatusOK, map[string]any{
				"statement_id": "stmt-2",
				"status":       map[string]any{"state": "PENDING"},
			}), nil
		}
		polls++
		if polls < 3 {
			return jsonResponse(t, http.StatusOK, map[string]any{
				"statement_id": "stmt-2",
				"status":       map[string]any{"state": "RUNNING"},
			}), nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"statement_id": "stmt-2",
			"status":       map[string]any{"state": "SUCCEEDED"},
			"manifest":     manifestFor("n"),
			"result":       map[string]any{"data_array": [][]any{{"1"}}},
		}), nil
	})

	rows, err := client.Execute(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if polls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
}

func TestExecuteFailedStatement(t *testing.T) {
	client := NewClient(testConfig(), nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			return jsonResponse(t, http.StatusOK, map[string]any{
				"statement_id": "stmt-3",
				"status":       map[string]any{"state": "PENDING"},
			}), nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"statement_id": "stmt-3",
			"status": map[string]any{
				"state": "FAILED",
				"error": map[string]any{"message": "TABLE_OR_VIEW_NOT_FOUND", "error_code": "BAD_REQUEST"},
			},
		}), nil
	})

	_, err := client.Execute(context.Background(), "SELECT * FROM missing")
	var execErr *utils.QueryExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected QueryExecutionError, got %v", err)
	}
	if execErr.Message != "TABLE_OR_VIEW_NOT_FOUND" {
		t.Fatalf("unexpected message: %s", execErr.Message)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.MaxWait = 10 * time.Millisecond
	client := NewClient(cfg, nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		state := "PENDING"
		if req.Method == http.MethodGet {
			state = "RUNNING"
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"statement_id": "stmt-4",
			"status":       map[string]any{"state": state},
		}), nil
	})

	_, err := client.Execute(context.Background(), "SELECT 1")
	var timeoutErr *utils.QueryTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected QueryTimeoutError, got %v", err)
	}
}

func TestExecuteCancelledBetweenPolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(testConfig(), nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodGet {
			cancel()
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"statement_id": "stmt-5",
			"status":       map[string]any{"state": "PENDING"},
		}), nil
	})

	_, err := client.Execute(ctx, "SELECT 1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteFollowsResultChunks(t *testing.T) {
	client := NewClient(testConfig(), nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodPost {
			return jsonResponse(t, http.StatusOK, map[string]any{
				"statement_id": "stmt-6",
				"status":       map[string]any{"state": "SUCCEEDED"},
				"manifest":     manifestFor("n"),
				"result": map[string]any{
					"data_array":               [][]any{{"1"}},
					"next_chunk_internal_link": "/api/2.0/sql/statements/stmt-6/result/chunks/1",
				},
			}), nil
		}
		if !strings.Contains(req.URL.Path, "/chunks/1") {
			t.Fatalf("unexpected chunk path: %s", req.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"result": map[string]any{"data_array": [][]any{{"2"}, {"3"}}},
		}), nil
	})

	rows, err := client.Execute(context.Background(), "SELECT n FROM numbers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows across chunks, got %d", len(rows))
	}
	if rows[2]["n"] != "3" {
		t.Fatalf("unexpected final row: %+v", rows[2])
	}
}

func TestUploadFile(t *testing.T) {
	var gotPath string
	var gotBody []byte
	client := NewClient(testConfig(), nil)
	client.httpClient = newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPut {
			t.Fatalf("unexpected method: %s", req.Method)
		}
		gotPath = req.URL.Path
		gotBody, _ = io.ReadAll(req.Body)
		return &http.Response{StatusCode: http.StatusNoContent, Body: io.NopCloser(strings.NewReader("")), Header: make(http.Header)}, nil
	})

	err := client.UploadFile(context.Background(), "/Volumes/cat/schema/vol/file.html", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/2.0/fs/files/Volumes/cat/schema/vol/file.html" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if string(gotBody) != "<html></html>" {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}
