package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// QueryStoreName is the file shared by all ad-hoc search captures.
const QueryStoreName = "twitter_queries.db"

// ErrUnknownKind is returned for a capture kind the layout does not place.
var ErrUnknownKind = errors.New("kind must be one of: profile, tweets, following, followers, query")

// ErrInvalidID is returned for an empty identifier or one that is not a
// plain file or table name.
var ErrInvalidID = errors.New("invalid capture id")

// Kind names what a capture holds.
type Kind string

// Capture kinds. User kinds share one store per user id; query captures share
// one store with one table per transaction id.
const (
	KindProfile   Kind = "profile"
	KindTweets    Kind = "tweets"
	KindFollowing Kind = "following"
	KindFollowers Kind = "followers"
	KindQuery     Kind = "query"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindProfile, KindTweets, KindFollowing, KindFollowers, KindQuery:
		return k, nil
	default:
		return "", fmt.Errorf("%w (got %q)", ErrUnknownKind, s)
	}
}

// Layout places stores under a data directory.
type Layout struct {
	Dir string
}

// UserPath returns the store of a user id: <dir>/<id>.db.
func (l Layout) UserPath(id string) string {
	return filepath.Join(l.Dir, id+".db")
}

// QueryPath returns the shared search store.
func (l Layout) QueryPath() string {
	return filepath.Join(l.Dir, QueryStoreName)
}

// Locate returns the store path and table name of a capture.
func (l Layout) Locate(kind Kind, id string) (path, tableName string, err error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	switch kind {
	case KindProfile, KindTweets, KindFollowing, KindFollowers:
		return l.UserPath(id), string(kind), nil
	case KindQuery:
		return l.QueryPath(), id, nil
	default:
		return "", "", fmt.Errorf("%w (got %q)", ErrUnknownKind, kind)
	}
}

var userStorePattern = regexp.MustCompile(`^\d+\.db$`)

// Discover lists the store files matching glob, sorted.
func Discover(glob string) ([]string, error) {
	files, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("discover stores %q: %w", glob, err)
	}
	sort.Strings(files)
	return files, nil
}

// UserStores lists the per-user stores matching glob: files named by a
// numeric user id.
func UserStores(glob string) ([]string, error) {
	files, err := Discover(glob)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, f := range files {
		if userStorePattern.MatchString(filepath.Base(f)) {
			out = append(out, f)
		}
	}
	return out, nil
}

// UserID returns the user id a per-user store file is named by.
func UserID(path string) (string, bool) {
	base := filepath.Base(path)
	if !userStorePattern.MatchString(base) {
		return "", false
	}
	return strings.TrimSuffix(base, ".db"), true
}
