package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solarecho3/web-tools/internal/testutil"
	"github.com/solarecho3/web-tools/pkg/config"
	"github.com/solarecho3/web-tools/pkg/logging"
	"github.com/solarecho3/web-tools/pkg/ratelimit"
	"github.com/solarecho3/web-tools/pkg/snapshot"
	"github.com/solarecho3/web-tools/pkg/store"
)

// workspace creates an isolated working directory with a credential file and
// a config pointing at baseURL.
func workspace(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	if err := os.WriteFile(filepath.Join(dir, "keys.json"), []byte(`{"keys":{"Bearer Token":"test-token"}}`), 0o600); err != nil {
		t.Fatalf("write keys.json: %v", err)
	}

	cfg := "data_dir: data\n" +
		"credentials_file: keys.json\n" +
		"api_base_url: " + baseURL + "\n" +
		"dashboard:\n  glob: data/*.db\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config.yaml: %v", err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := (&app{}).execute(context.Background(), args, &out, &errOut)
	return out.String(), err
}

func TestRenderLimits(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := renderLimits(nil)
		if !strings.Contains(got, "no responses tracked") {
			t.Errorf("renderLimits(nil) = %q, want placeholder", got)
		}
	})

	t.Run("sorted endpoints", func(t *testing.T) {
		log := map[string]ratelimit.Snapshot{
			"user_tweets":  {Remaining: 1497, Limit: 1500, PercentRemaining: 99, UntilReset: 14 * time.Minute},
			"user_profile": {Remaining: 5, Limit: 900, PercentRemaining: 0, UntilReset: time.Minute},
		}
		got := renderLimits(log)

		for _, want := range []string{"Rate limits", "1497/1500", "5/900", "14m0s"} {
			if !strings.Contains(got, want) {
				t.Errorf("renderLimits() missing %q in %q", want, got)
			}
		}
		if strings.Index(got, "user_profile") > strings.Index(got, "user_tweets") {
			t.Error("endpoints not sorted")
		}
	})
}

func TestRenderReport(t *testing.T) {
	report := &snapshot.Report{
		Username: "alice",
		UserID:   "42",
		Stages: []snapshot.Stage{
			{Kind: store.KindProfile, Rows: 4, Pages: 1, Persisted: true, Capture: store.Capture{Table: "profile", Path: "data/42.db"}},
			{Kind: store.KindTweets, Rows: 1, Pages: 1, Diagnostic: true},
		},
		Skipped: []store.Kind{store.KindFollowers},
	}

	got := renderReport(report)
	for _, want := range []string{"@alice (42)", "4 rows, 1 pages", "profile in data/42.db", "diagnostic, not stored", "skipped"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderReport() missing %q in %q", want, got)
		}
	}
}

func TestSnapshotCommand(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/users/by/username/alice", testutil.NewProfileResponse("42", "alice"))
	mock.SetPages("/2/users/42/tweets", 1500,
		testutil.Page{Records: testutil.Records(0, 3), NextToken: "p2"},
		testutil.Page{Records: testutil.Records(3, 2)},
	)
	mock.SetPages("/2/users/42/following", 15, testutil.Page{Records: testutil.Users(0, 4)})

	dir := workspace(t, mock.URL())

	out, err := runCLI(t, "snapshot", "@alice", "--following")
	if err != nil {
		t.Fatalf("snapshot error = %v", err)
	}
	for _, want := range []string{"@alice (42)", "tweets", "5 rows, 2 pages", "following", "Rate limits", "user_tweets"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "42.db")); err != nil {
		t.Fatalf("store not created: %v", err)
	}

	out, err = runCLI(t, "tables")
	if err != nil {
		t.Fatalf("tables error = %v", err)
	}
	for _, want := range []string{"42.db", "profile", "4 rows", "tweets", "5 rows", "following"} {
		if !strings.Contains(out, want) {
			t.Errorf("tables output missing %q:\n%s", want, out)
		}
	}
}

func TestSnapshotCommand_MissingCredentials(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	dir := workspace(t, mock.URL())
	if err := os.Remove(filepath.Join(dir, "keys.json")); err != nil {
		t.Fatal(err)
	}

	_, err := runCLI(t, "snapshot", "alice")
	if !errors.Is(err, config.ErrCredentials) {
		t.Fatalf("error = %v, want ErrCredentials", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.GetRequestCount())
	}
}

func TestSnapshotCommand_UnknownUser(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHandler("/2/users/by/username/ghost", func(w http.ResponseWriter, r *http.Request) {
		testutil.SetRateLimitHeaders(w, 899, 900, 15*time.Minute)
		testutil.WriteJSON(w, http.StatusOK, map[string]any{
			"errors": []any{map[string]any{"title": "Not Found Error", "detail": "Could not find user with username: [ghost]."}},
		})
	})

	dir := workspace(t, mock.URL())

	out, err := runCLI(t, "snapshot", "ghost")
	if !errors.Is(err, snapshot.ErrNoUserID) {
		t.Fatalf("error = %v, want ErrNoUserID", err)
	}
	if !strings.Contains(out, "diagnostic, not stored") {
		t.Errorf("output missing diagnostic stage:\n%s", out)
	}
	if files, _ := filepath.Glob(filepath.Join(dir, "data", "*.db")); len(files) != 0 {
		t.Errorf("stores = %v, want none", files)
	}
}

func TestSearchCommand(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetHandler("/2/tweets/search/recent", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "golang news" {
			t.Errorf("query = %q, want %q", got, "golang news")
		}
		w.Header().Set("x-transaction-id", "tx-9")
		testutil.SetRateLimitHeaders(w, 449, 450, 15*time.Minute)
		testutil.WriteJSON(w, http.StatusOK, map[string]any{
			"data": []any{map[string]any{"id": "1", "text": "a"}},
			"meta": map[string]any{"result_count": 1},
		})
	})

	dir := workspace(t, mock.URL())

	out, err := runCLI(t, "search", "golang", "news", "--pages", "1")
	if err != nil {
		t.Fatalf("search error = %v", err)
	}
	for _, want := range []string{"#0 golang news", "tx-9", "1 rows", "query"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	s, err := store.OpenReadOnly(filepath.Join(dir, "data", store.QueryStoreName), logging.Nop())
	if err != nil {
		t.Fatalf("OpenReadOnly() error = %v", err)
	}
	defer s.Close()

	tbl, err := s.Read(t.Context(), "tx-9")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v, _ := tbl.Value(0, store.ColumnQueryTerm); v != "golang%20news" {
		t.Errorf("query_term = %v, want %q", v, "golang%20news")
	}
}

func TestSearchCommand_NegativePages(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	workspace(t, mock.URL())

	if _, err := runCLI(t, "search", "go", "--pages", "-1"); err == nil {
		t.Fatal("expected error for negative --pages")
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.GetRequestCount())
	}
}

func TestTablesCommand_NoStores(t *testing.T) {
	workspace(t, "http://127.0.0.1:1")

	out, err := runCLI(t, "tables")
	if err != nil {
		t.Fatalf("tables error = %v", err)
	}
	if !strings.Contains(out, "no stores match data/*.db") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigCommand(t *testing.T) {
	workspace(t, "http://127.0.0.1:1")
	t.Setenv("WEBTOOLS_REDIS_PASSWORD", "hunter2")

	out, err := runCLI(t, "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	for _, want := range []string{"api_base_url: http://127.0.0.1:1", "data_dir: data", redactedPassword} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hunter2") {
		t.Error("redis password printed in clear")
	}
}

func TestConfigCommand_InvalidConfig(t *testing.T) {
	dir := workspace(t, "http://127.0.0.1:1")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("bogus_key: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "config"); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestLogLevelFlag(t *testing.T) {
	workspace(t, "http://127.0.0.1:1")

	var out bytes.Buffer
	args := []string{"config", "--log-level", "debug", "--pretty"}
	if err := (&app{}).execute(context.Background(), args, &out, &out); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "level: debug") || !strings.Contains(out.String(), "pretty: true") {
		t.Errorf("flags not applied to config:\n%s", out.String())
	}
}

func TestExecute_ClosesRedisOnFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	dir := workspace(t, mock.URL())
	if err := os.Remove(filepath.Join(dir, "keys.json")); err != nil {
		t.Fatal(err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	a := &app{redis: rdb}

	var out bytes.Buffer
	if err := a.execute(context.Background(), []string{"snapshot", "alice"}, &out, &out); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if a.redis != nil {
		t.Error("redis client still set after a failed command")
	}
	if err := rdb.Ping(context.Background()).Err(); !errors.Is(err, redis.ErrClosed) {
		t.Errorf("Ping() after execute = %v, want redis.ErrClosed", err)
	}
}
