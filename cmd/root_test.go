package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/directory-crawler/internal/cfemail"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func directoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte("<html><body></body></html>"))
			return
		}
		_, _ = w.Write([]byte(`<html><body>
<div class="company-card"><h3 class="company-card__title"><a href="/firma,1">KFD</a></h3></div>
</body></html>`))
	})
	mux.HandleFunc("/firma,1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `<html><body><h2 class="company-header__title">KFD</h2>
<a class="__cf_email__" data-cfemail="%s">[email protected]</a></body></html>`, cfemail.Encode(0x42, "a@b.com"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCrawlCommandWritesSummary(t *testing.T) {
	srv := directoryServer(t)
	path := writeConfig(t, fmt.Sprintf(`
crawler:
  base_url: %[1]s
  search_url: %[1]s/search
retry:
  interval: 0s
storage:
  provider: sqlite
  sqlite:
    path: %[2]s
logging:
  development: false
`, srv.URL, filepath.Join(t.TempDir(), "companies.db")))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"crawl", "--config", path})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var summary crawler.CrawlSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, 2, summary.Pages)
	require.Equal(t, 1, summary.Persisted)
	require.NotEmpty(t, summary.RunID)
}

func TestCrawlCommandMaxPagesFlag(t *testing.T) {
	srv := directoryServer(t)
	path := writeConfig(t, fmt.Sprintf(`
crawler:
  base_url: %[1]s
  search_url: %[1]s/search
storage:
  provider: memory
logging:
  development: false
`, srv.URL))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"crawl", "--config", path, "--max-pages", "1"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var summary crawler.CrawlSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.Equal(t, 1, summary.Pages)
	require.Equal(t, 1, summary.Dispatched)
}

func TestCrawlCommandFailsFastWhenOpsPortTaken(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html><body></body></html>"))
	}))
	t.Cleanup(srv.Close)

	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = taken.Close() })
	port := taken.Addr().(*net.TCPAddr).Port

	path := writeConfig(t, fmt.Sprintf(`
crawler:
  base_url: %[1]s
  search_url: %[1]s/search
server:
  port: %[2]d
storage:
  provider: memory
logging:
  development: false
`, srv.URL, port))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"crawl", "--config", path, "--serve"})
	err = root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "start ops server")
	require.Zero(t, hits.Load())
}

func TestCrawlCommandRejectsInvalidFlag(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"crawl", "--start-page", "0"})
	require.Error(t, root.ExecuteContext(context.Background()))
}

func TestMigrateCommandCreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "companies.db")
	path := writeConfig(t, fmt.Sprintf(`
storage:
  provider: sqlite
  sqlite:
    path: %s
logging:
  development: false
`, dbPath))

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", path})
	require.NoError(t, root.ExecuteContext(context.Background()))

	_, err := os.Stat(dbPath)
	require.NoError(t, err)
}
