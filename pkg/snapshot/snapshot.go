// Package snapshot sequences the collection stages for one account
// (profile, tweets, then optionally one relationship list) and persists each
// stage as soon as it completes. A failing stage leaves earlier captures in
// place and skips the rest.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/solarecho3/web-tools/pkg/client"
	"github.com/solarecho3/web-tools/pkg/pagination"
	"github.com/solarecho3/web-tools/pkg/store"
	"github.com/solarecho3/web-tools/pkg/table"
)

// ErrNoUserID is returned when the profile stage yields no user id, as for
// an unknown or suspended account.
var ErrNoUserID = errors.New("profile has no user id")

// Source fetches collections. *client.Session implements it.
type Source interface {
	UserProfile(ctx context.Context, username string) (*pagination.Result, error)
	UserTweets(ctx context.Context, userID string, cfg pagination.Config) (*pagination.Result, error)
	UserFollowing(ctx context.Context, userID string, cfg pagination.Config) (*pagination.Result, error)
	UserFollowers(ctx context.Context, userID string, cfg pagination.Config) (*pagination.Result, error)
	Search(ctx context.Context, term string, cfg pagination.Config) (*pagination.Result, client.QueryEntry, error)
}

// Sink persists captures. *store.Writer implements it.
type Sink interface {
	WriteCapture(ctx context.Context, kind store.Kind, id string, t *table.Table, queryTerm string) (store.Capture, error)
}

// Options selects the optional stages of a run.
type Options struct {
	// Following collects the accounts the user follows. It takes precedence
	// over Followers: a run collects at most one relationship list.
	Following bool

	// Followers collects the accounts following the user.
	Followers bool

	// Throttle pauses between the pages of every stage.
	Throttle bool
}

// Stage is the outcome of one collection stage.
type Stage struct {
	Kind       store.Kind
	Rows       int
	Pages      int
	Diagnostic bool
	Persisted  bool
	Capture    store.Capture
}

// Report summarizes a run.
type Report struct {
	Username string
	UserID   string
	Stages   []Stage

	// Skipped lists stages requested but not run.
	Skipped []store.Kind
}

// Runner executes snapshots and searches.
type Runner struct {
	source      Source
	sink        Sink
	collections map[string]pagination.Config
	logger      zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(source Source, sink Sink, logger zerolog.Logger) *Runner {
	return &Runner{source: source, sink: sink, logger: logger}
}

// SetCollections sets per-endpoint collection options, keyed by endpoint
// name. Endpoints without an entry use their defaults.
func (r *Runner) SetCollections(c map[string]pagination.Config) {
	r.collections = c
}

func (r *Runner) collection(endpoint string, throttle bool) pagination.Config {
	cfg := r.collections[endpoint]
	cfg.Throttle = cfg.Throttle || throttle
	return cfg
}

// Run snapshots one account: profile, tweets, and the selected relationship
// list, persisting each stage before starting the next. The report lists the
// stages completed so far even when an error is returned.
func (r *Runner) Run(ctx context.Context, username string, opts Options) (*Report, error) {
	report := &Report{Username: username}
	logger := r.logger.With().Str("username", username).Logger()

	// Stage 1: Profile
	profile, err := r.source.UserProfile(ctx, username)
	if err != nil {
		return report, fmt.Errorf("profile stage: %w", err)
	}

	userID, ok := UserID(profile.Table)
	if profile.Diagnostic || !ok {
		report.Stages = append(report.Stages, Stage{Kind: store.KindProfile, Rows: profile.Table.Len(), Pages: profile.Pages, Diagnostic: true})
		return report, fmt.Errorf("profile stage: %w: %s", ErrNoUserID, describe(profile.Table))
	}
	report.UserID = userID
	logger = logger.With().Str("user_id", userID).Logger()

	if err := r.persist(ctx, logger, report, store.KindProfile, userID, profile); err != nil {
		return report, err
	}

	// Stage 2: Tweets
	tweets, err := r.source.UserTweets(ctx, userID, r.collection(client.UserTweetsEndpoint.Name, opts.Throttle))
	if err != nil {
		return report, fmt.Errorf("tweets stage: %w", err)
	}
	if err := r.persist(ctx, logger, report, store.KindTweets, userID, tweets); err != nil {
		return report, err
	}

	// Stage 3: One relationship list
	switch {
	case opts.Following:
		if opts.Followers {
			report.Skipped = append(report.Skipped, store.KindFollowers)
			logger.Warn().Msg("Following and followers both requested, collecting following only")
		}
		following, err := r.source.UserFollowing(ctx, userID, r.collection(client.UserFollowingEndpoint.Name, opts.Throttle))
		if err != nil {
			return report, fmt.Errorf("following stage: %w", err)
		}
		if err := r.persist(ctx, logger, report, store.KindFollowing, userID, following); err != nil {
			return report, err
		}

	case opts.Followers:
		followers, err := r.source.UserFollowers(ctx, userID, r.collection(client.UserFollowersEndpoint.Name, opts.Throttle))
		if err != nil {
			return report, fmt.Errorf("followers stage: %w", err)
		}
		if err := r.persist(ctx, logger, report, store.KindFollowers, userID, followers); err != nil {
			return report, err
		}
	}

	logger.Info().Int("stages", len(report.Stages)).Msg("Snapshot complete")
	return report, nil
}

// persist writes a stage's records. Diagnostic tables are reported but not
// written, so error payloads never widen a store's record tables.
func (r *Runner) persist(ctx context.Context, logger zerolog.Logger, report *Report, kind store.Kind, id string, res *pagination.Result) error {
	stage := Stage{Kind: kind, Rows: res.Table.Len(), Pages: res.Pages, Diagnostic: res.Diagnostic}

	if res.Diagnostic {
		logger.Warn().Str("table", string(kind)).Str("detail", describe(res.Table)).Msg("Stage returned no records, not persisted")
		report.Stages = append(report.Stages, stage)
		return nil
	}

	capture, err := r.sink.WriteCapture(ctx, kind, id, res.Table, "")
	if err != nil {
		report.Stages = append(report.Stages, stage)
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	stage.Persisted = true
	stage.Capture = capture
	report.Stages = append(report.Stages, stage)
	return nil
}

// Query runs a search and persists the results under the search's
// transaction id, tagged with the percent-encoded term.
func (r *Runner) Query(ctx context.Context, term string, cfg pagination.Config) (Stage, client.QueryEntry, error) {
	res, entry, err := r.source.Search(ctx, term, cfg)
	if err != nil {
		return Stage{Kind: store.KindQuery}, entry, fmt.Errorf("search %q: %w", term, err)
	}

	stage := Stage{Kind: store.KindQuery, Rows: res.Table.Len(), Pages: res.Pages, Diagnostic: res.Diagnostic}
	if res.Diagnostic {
		r.logger.Warn().Str("query", term).Str("detail", describe(res.Table)).Msg("Search returned no records, not persisted")
		return stage, entry, nil
	}

	capture, err := r.sink.WriteCapture(ctx, store.KindQuery, entry.TransactionID, res.Table, entry.EncodedTerm)
	if err != nil {
		return stage, entry, fmt.Errorf("persist query %s: %w", entry.TransactionID, err)
	}
	stage.Persisted = true
	stage.Capture = capture
	return stage, entry, nil
}

// UserID reads the user id from a profile table.
func UserID(profile *table.Table) (string, bool) {
	if profile == nil || profile.Empty() {
		return "", false
	}
	v, ok := profile.Value(0, "id")
	if !ok || v == nil {
		return "", false
	}
	id := table.FormatValue(v)
	return id, id != ""
}

// describe summarizes a diagnostic table for logs and errors.
func describe(t *table.Table) string {
	for _, col := range []string{"detail", "title", "message"} {
		if v, ok := t.Value(0, col); ok && v != nil {
			return table.FormatValue(v)
		}
	}
	return fmt.Sprintf("%d rows", t.Len())
}
