package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/solarecho3/web-tools/internal/testutil"
	"github.com/solarecho3/web-tools/pkg/client"
	"github.com/solarecho3/web-tools/pkg/pagination"
	"github.com/solarecho3/web-tools/pkg/store"
)

func newSession(t *testing.T, mock *testutil.MockAPI) *client.Session {
	t.Helper()

	cfg := client.DefaultConfig("test-token")
	cfg.BaseURL = mock.URL()
	s, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	s.SetSleeper(func(context.Context, time.Duration) error { return nil })
	return s
}

func TestRun_SessionToStore(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/users/by/username/jack", testutil.NewProfileResponse("12", "jack"))
	mock.SetPages("/2/users/12/tweets", 1500,
		testutil.Page{Records: testutil.Records(0, 100), NextToken: "A"},
		testutil.Page{Records: testutil.Records(100, 30)},
	)
	mock.SetPages("/2/users/12/following", 15, testutil.Page{Records: testutil.Users(0, 7)})

	writer := store.NewWriter(store.Layout{Dir: t.TempDir()}, zerolog.Nop())
	r := NewRunner(newSession(t, mock), writer, zerolog.Nop())
	ctx := context.Background()

	report, err := r.Run(ctx, "@jack", Options{Following: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[store.Kind]int{
		store.KindProfile:   4,
		store.KindTweets:    130,
		store.KindFollowing: 7,
	}
	for kind, rows := range want {
		got, err := writer.ReadCapture(ctx, kind, report.UserID)
		if err != nil {
			t.Fatalf("ReadCapture(%s) error = %v", kind, err)
		}
		if got.Len() != rows {
			t.Errorf("%s rows = %d, want %d", kind, got.Len(), rows)
		}
		if !got.HasColumn(store.ColumnCaptureTimestamp) {
			t.Errorf("%s lacks %s", kind, store.ColumnCaptureTimestamp)
		}
	}

	// A second run appends another capture.
	if _, err := r.Run(ctx, "jack", Options{}); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	got, err := writer.ReadCapture(ctx, store.KindTweets, "12")
	if err != nil {
		t.Fatalf("ReadCapture() error = %v", err)
	}
	if got.Len() != 260 {
		t.Errorf("tweets rows after two runs = %d, want 260", got.Len())
	}
}

func TestRun_SessionUsageCap(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/2/users/by/username/jack", testutil.NewProfileResponse("12", "jack"))
	mock.SetResponse("/2/users/12/tweets", testutil.NewUsageCapResponse())

	writer := store.NewWriter(store.Layout{Dir: t.TempDir()}, zerolog.Nop())
	r := NewRunner(newSession(t, mock), writer, zerolog.Nop())

	_, err := r.Run(context.Background(), "jack", Options{Followers: true})
	if !errors.Is(err, client.ErrUsageCapExceeded) {
		t.Fatalf("Run() error = %v, want ErrUsageCapExceeded", err)
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}

	profile, err := writer.ReadCapture(context.Background(), store.KindProfile, "12")
	if err != nil {
		t.Fatalf("profile capture missing: %v", err)
	}
	if profile.Len() != 4 {
		t.Errorf("profile rows = %d, want 4", profile.Len())
	}
}

func TestQuery_SessionToStore(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetPages("/2/tweets/search/recent", 450, testutil.Page{Records: testutil.Records(0, 12)})

	writer := store.NewWriter(store.Layout{Dir: t.TempDir()}, zerolog.Nop())
	r := NewRunner(newSession(t, mock), writer, zerolog.Nop())

	stage, entry, err := r.Query(context.Background(), "golang generics", pagination.Config{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if stage.Rows != 12 || !stage.Persisted {
		t.Errorf("stage = %+v", stage)
	}

	got, err := writer.ReadCapture(context.Background(), store.KindQuery, entry.TransactionID)
	if err != nil {
		t.Fatalf("ReadCapture() error = %v", err)
	}
	if v, _ := got.Value(0, store.ColumnQueryTerm); v != "golang%20generics" {
		t.Errorf("query_term = %v, want golang%%20generics", v)
	}
}
