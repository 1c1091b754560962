package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"thumbfetch/internal/config"
	"thumbfetch/internal/models"
	"thumbfetch/internal/modules/filter"
	"thumbfetch/internal/modules/store"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(t.TempDir(), "output")
	cfg.DispatchDelay = time.Millisecond
	cfg.ReportInterval = 10 * time.Millisecond
	return cfg
}

func TestRunPipeline(t *testing.T) {
	logger := zaptest.NewLogger(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("test"))
	}))
	defer ts.Close()

	st := store.NewMemory(
		store.Document{ID: "r1", Folder: "f", Thumbnail: &models.Thumbnail{PublicURL: ts.URL + "/a.jpg"}},
		store.Document{ID: "r2", Folder: "f"},
		store.Document{ID: "r3", Folder: "f", Thumbnail: &models.Thumbnail{PublicURL: "not a url"}},
		store.Document{ID: "r4", Folder: "f", Thumbnail: &models.Thumbnail{PublicURL: ts.URL + "/missing.jpg"}},
		store.Document{ID: "r5", Folder: "other", Thumbnail: &models.Thumbnail{PublicURL: ts.URL + "/b.jpg"}},
	)

	cfg := testConfig(t)
	cfg.FolderID = "f"
	cfg.PageSize = 2

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runPipeline(ctx, cfg, st, logger, &out); err != nil {
		t.Fatalf("runPipeline: %v", err)
	}

	report := out.String()
	for _, want := range []string{"Total records", "4", "Failed by wrong URI", "Skipped (no thumbnail)"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Count(report, "Total records") != 1 {
		t.Errorf("report must be printed exactly once:\n%s", report)
	}

	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "r1.jpg")); err != nil {
		t.Errorf("expected r1.jpg: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, "r5.jpg")); !os.IsNotExist(err) {
		t.Errorf("filtered record r5 must not be downloaded")
	}
}

type brokenStore struct{ store.RecordStore }

func (brokenStore) Count(context.Context, filter.Filter) (int64, error) {
	return 0, errors.New("no reachable servers")
}

func TestRunPipeline_StoreFailure(t *testing.T) {
	logger := zaptest.NewLogger(t)

	var out bytes.Buffer
	err := runPipeline(context.Background(), testConfig(t), brokenStore{store.NewMemory()}, logger, &out)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if !strings.Contains(out.String(), "Total records") {
		t.Errorf("expected a partial report on failure, got %q", out.String())
	}
}

// undercountStore reports one record fewer than it pages through, as when
// a record is inserted between count and paging.
type undercountStore struct{ *store.Memory }

func (s undercountStore) Count(ctx context.Context, f filter.Filter) (int64, error) {
	n, err := s.Memory.Count(ctx, f)
	return n - 1, err
}

func TestRunPipeline_CollectionGrew(t *testing.T) {
	logger := zaptest.NewLogger(t)

	st := undercountStore{store.NewMemory(
		store.Document{ID: "r1"},
		store.Document{ID: "r2"},
	)}

	var out bytes.Buffer
	if err := runPipeline(context.Background(), testConfig(t), st, logger, &out); err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if n := strings.Count(out.String(), "Total records"); n != 1 {
		t.Errorf("report must be printed exactly once, got %d:\n%s", n, out.String())
	}
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("thumbfetch", pflag.ContinueOnError)
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thumbfetch.yaml")
	if err := os.WriteFile(path, []byte("page_size: 500\noutput_dir: /from/file\ndispatch_delay: 10ms\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("THUMBFETCH_OUTPUT_DIR", "/from/env")
	t.Setenv("THUMBFETCH_REPORT_INTERVAL", "2s")

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg config.Config)
	}{
		{
			name: "file then env",
			args: []string{"--config", path},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.PageSize != 500 {
					t.Errorf("expected page size from file, got %d", cfg.PageSize)
				}
				if cfg.OutputDir != "/from/env" {
					t.Errorf("expected env to override file, got %q", cfg.OutputDir)
				}
				if cfg.DispatchDelay != 10*time.Millisecond {
					t.Errorf("expected dispatch delay from file, got %v", cfg.DispatchDelay)
				}
				if cfg.ReportInterval != 2*time.Second {
					t.Errorf("expected report interval from env, got %v", cfg.ReportInterval)
				}
			},
		},
		{
			name: "flags override env",
			args: []string{"-c", path, "--folder-id", "from-flag", "-o", "/from/flag", "--report-interval", "50ms"},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.FolderID != "from-flag" {
					t.Errorf("expected folder from flag, got %q", cfg.FolderID)
				}
				if cfg.OutputDir != "/from/flag" {
					t.Errorf("expected output from flag, got %q", cfg.OutputDir)
				}
				if cfg.ReportInterval != 50*time.Millisecond {
					t.Errorf("expected report interval from flag, got %v", cfg.ReportInterval)
				}
			},
		},
		{
			name: "explicit zero delay",
			args: []string{"-c", path, "--dispatch-delay=0", "--request-timeout=0"},
			check: func(t *testing.T, cfg config.Config) {
				if cfg.DispatchDelay != 0 {
					t.Errorf("expected --dispatch-delay=0 to win, got %v", cfg.DispatchDelay)
				}
			},
		},
		{
			name: "unset flags keep defaults",
			check: func(t *testing.T, cfg config.Config) {
				if cfg.DispatchDelay != config.Default().DispatchDelay {
					t.Errorf("expected default dispatch delay, got %v", cfg.DispatchDelay)
				}
				if cfg.PageSize != config.Default().PageSize {
					t.Errorf("expected default page size, got %d", cfg.PageSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(newFlags(t, tt.args...))
			if err != nil {
				t.Fatalf("loadConfig: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "negative page size", args: []string{"--page-size=-1"}},
		{name: "zero page size", args: []string{"--page-size=0"}},
		{name: "zero report interval", args: []string{"--report-interval=0"}},
		{name: "missing config file", args: []string{"-c", "/does/not/exist.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadConfig(newFlags(t, tt.args...)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	logger := zaptest.NewLogger(t)

	rootCmd.SetArgs([]string{"--page-size=-1"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	// Reaching the assertion at all means Execute did not exit the process.
	err := Execute(context.Background(), logger, zap.NewAtomicLevel())
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if !strings.Contains(err.Error(), "page_size") {
		t.Errorf("unexpected error %v", err)
	}
}
