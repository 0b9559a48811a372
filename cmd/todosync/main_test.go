package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erauner12/todosync/internal/app"
	"github.com/erauner12/todosync/internal/httpapi"
	"github.com/erauner12/todosync/internal/localstore"
	"github.com/erauner12/todosync/internal/service/todoservice"
	"github.com/erauner12/todosync/internal/syncx"
)

// run executes the root command with fresh flag state and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, remoteURL, dbPath, jsonOutput, purgeQueue = "", "", "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := execute()
	return out.String(), err
}

func TestCLI_AddListSync(t *testing.T) {
	server := httptest.NewServer((&httpapi.Server{
		Todos: todoservice.NewService(todoservice.NewMemoryRepository()),
	}).Routes())
	defer server.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	t.Setenv("TODOSYNC_ENV", "prod")
	t.Setenv("TODOSYNC_LOG_LEVEL", "error")

	out, err := run(t, "config", "init", "--config", cfgPath, "--remote", server.URL, "--db", filepath.Join(dir, "todos.db"))
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if !strings.Contains(out, cfgPath) {
		t.Errorf("config init output = %q", out)
	}

	if out, err := run(t, "add", "--config", cfgPath, "Buy", "milk"); err != nil || !strings.Contains(out, "Added") {
		t.Fatalf("add: %v\n%s", err, out)
	}

	out, err = run(t, "queue", "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	var q app.QueueStatus
	if err := json.Unmarshal([]byte(out), &q); err != nil {
		t.Fatalf("decode queue output %q: %v", out, err)
	}
	if len(q.Pending) != 1 || q.Pending[0].Operation != syncx.OpInsert {
		t.Errorf("pending = %+v", q.Pending)
	}

	if out, err := run(t, "sync", "--config", cfgPath); err != nil || !strings.Contains(out, "Pushed 1") {
		t.Fatalf("sync: %v\n%s", err, out)
	}

	out, err = run(t, "list", "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var records []localstore.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode list output %q: %v", out, err)
	}
	if len(records) != 1 || records[0].Title != "Buy milk" || records[0].Status != syncx.StatusSynced {
		t.Errorf("records = %+v", records)
	}

	if _, err := run(t, "config", "init", "--config", cfgPath); err == nil {
		t.Error("second config init succeeded over an existing file")
	}
}

func TestCLI_SyncUnreachable(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TODOSYNC_ENV", "prod")
	t.Setenv("TODOSYNC_LOG_LEVEL", "error")
	t.Setenv("TODOSYNC_CALL_TIMEOUT_SECONDS", "1")
	t.Setenv("XDG_CONFIG_HOME", dir)

	args := []string{"--remote", "http://127.0.0.1:1", "--db", filepath.Join(dir, "todos.db")}
	if _, err := run(t, append([]string{"add", "offline item"}, args...)...); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := run(t, append([]string{"sync"}, args...)...)
	if err == nil {
		t.Fatalf("sync against unreachable remote succeeded:\n%s", out)
	}
	if !strings.Contains(out, "remaining 1") {
		t.Errorf("sync output = %q, want the entry to remain", out)
	}
}

func TestCLI_FailingCommandClosesLogFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "todosync.log")
	t.Setenv("TODOSYNC_ENV", "prod")
	t.Setenv("TODOSYNC_LOG_LEVEL", "info")
	t.Setenv("TODOSYNC_LOG_FILE", logFile)
	t.Setenv("TODOSYNC_CALL_TIMEOUT_SECONDS", "1")
	t.Setenv("XDG_CONFIG_HOME", dir)

	args := []string{"sync", "--remote", "http://127.0.0.1:1", "--db", filepath.Join(dir, "todos.db")}
	if _, err := run(t, args...); err == nil {
		t.Fatal("sync against unreachable remote succeeded")
	}
	if logCloser != nil {
		t.Error("log file left open after a failing command")
	}
	if _, err := os.Stat(logFile); err != nil {
		t.Errorf("log file not written: %v", err)
	}
}
