package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solarecho3/web-tools/pkg/pagination"
	"github.com/solarecho3/web-tools/pkg/table"
)

// Endpoint templates for the v2 API. Names key the rate-limit log.
var (
	UserProfileEndpoint = pagination.Endpoint{
		Name:            "user_profile",
		Path:            "/2/users/by/username/%s",
		Query:           url.Values{"user.fields": {"description,public_metrics,profile_image_url"}},
		DefaultMaxPages: 1,
	}

	UserTweetsEndpoint = pagination.Endpoint{
		Name: "user_tweets",
		Path: "/2/users/%s/tweets",
		Query: url.Values{
			"tweet.fields": {"created_at,text,public_metrics"},
			"max_results":  {"100"},
		},
		DefaultMaxPages: 1500,
		ExpandColumn:    "public_metrics",
	}

	UserFollowingEndpoint = pagination.Endpoint{
		Name: "user_following",
		Path: "/2/users/%s/following",
		Query: url.Values{
			"user.fields": {"id,name,username,public_metrics"},
			"max_results": {"1000"},
		},
		DefaultMaxPages: 15,
		ExpandColumn:    "public_metrics",
	}

	UserFollowersEndpoint = pagination.Endpoint{
		Name: "user_followers",
		Path: "/2/users/%s/followers",
		Query: url.Values{
			"user.fields": {"id,name,username,public_metrics"},
			"max_results": {"1000"},
		},
		DefaultMaxPages: 15,
		ExpandColumn:    "public_metrics",
	}

	SearchEndpoint = pagination.Endpoint{
		Name:            "query",
		Path:            "/2/tweets/search/recent",
		Query:           url.Values{"max_results": {"100"}},
		SubjectParam:    "query",
		CursorParam:     "next_token",
		DefaultMaxPages: 1,
	}
)

// ProfileIndex names the column holding the metric key of each profile row.
const ProfileIndex = "metric"

// UserProfile looks up a user by username. A leading "@" is ignored. The
// table has one row per public metric; a missing user yields a diagnostic
// table of the API's errors.
func (s *Session) UserProfile(ctx context.Context, username string) (*pagination.Result, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, ErrEmptyUsername
	}

	ep := UserProfileEndpoint
	resp, err := s.Fetch(ctx, ep.Name, ep.Target(s.baseURL, username, ""))
	if err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", username, err)
	}

	if _, err := s.limits.Observe(ctx, ep.Name, resp.Header); err != nil {
		s.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Rate limit not tracked for response")
	}

	if step := pagination.Classify(ep.Name, resp, true); step.Kind == pagination.StepError {
		return nil, step.Err
	}

	obj, ok := resp.Object()
	if !ok {
		s.logger.Warn().Str("username", username).Int("status", resp.StatusCode).Msg("Profile lookup returned no user")
		return &pagination.Result{Table: pagination.Diagnostic(resp), Pages: 1, Diagnostic: true, Last: resp}, nil
	}

	return &pagination.Result{Table: table.FromObject(obj, ProfileIndex), Pages: 1, Last: resp}, nil
}

// UserTweets collects a user's timeline, newest first.
func (s *Session) UserTweets(ctx context.Context, userID string, cfg pagination.Config) (*pagination.Result, error) {
	return s.collector.Collect(ctx, UserTweetsEndpoint, userID, cfg)
}

// UserFollowing collects the accounts a user follows.
func (s *Session) UserFollowing(ctx context.Context, userID string, cfg pagination.Config) (*pagination.Result, error) {
	return s.collector.Collect(ctx, UserFollowingEndpoint, userID, cfg)
}

// UserFollowers collects the accounts following a user.
func (s *Session) UserFollowers(ctx context.Context, userID string, cfg pagination.Config) (*pagination.Result, error) {
	return s.collector.Collect(ctx, UserFollowersEndpoint, userID, cfg)
}

// Search collects recent tweets matching term and records the search in the
// query log. The entry's transaction id comes from the last response, or is
// generated when the server did not send one.
func (s *Session) Search(ctx context.Context, term string, cfg pagination.Config) (*pagination.Result, QueryEntry, error) {
	if strings.TrimSpace(term) == "" {
		return nil, QueryEntry{}, ErrEmptyQuery
	}

	result, err := s.collector.Collect(ctx, SearchEndpoint, term, cfg)
	if err != nil {
		return nil, QueryEntry{}, err
	}

	txID := ""
	if result.Last != nil {
		txID = result.Last.TransactionID()
	}
	if txID == "" {
		txID = uuid.NewString()
		s.logger.Debug().Str("transaction_id", txID).Msg("No transaction id header, generated one")
	}

	entry := s.queries.Append(QueryEntry{
		Timestamp:     time.Now(),
		TransactionID: txID,
		Term:          term,
		EncodedTerm:   EncodeQueryTerm(term),
	})

	s.logger.Info().
		Str("query", term).
		Str("transaction_id", txID).
		Int("records", result.Table.Len()).
		Msg("Search complete")

	return result, entry, nil
}
