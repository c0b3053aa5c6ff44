package table

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tweet(id string, likes int) map[string]any {
	return map[string]any{
		"id":   id,
		"text": "tweet " + id,
		"public_metrics": map[string]any{
			"like_count":    float64(likes),
			"retweet_count": float64(0),
		},
	}
}

func TestFromRecords(t *testing.T) {
	tbl := FromRecords([]map[string]any{
		{"id": "1", "text": "a"},
		{"id": "2", "author_id": "9"},
	})

	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"id", "text", "author_id"}, tbl.Columns())

	v, ok := tbl.Value(1, "text")
	assert.True(t, ok)
	assert.Nil(t, v, "missing key reads as nil")
}

func TestFromRecords_Empty(t *testing.T) {
	tbl := FromRecords(nil)

	assert.True(t, tbl.Empty())
	assert.Empty(t, tbl.Columns())
}

func TestConcat_PreservesPageOrder(t *testing.T) {
	page0 := FromRecords([]map[string]any{{"id": "1"}, {"id": "2"}})
	page1 := FromRecords([]map[string]any{{"id": "3", "lang": "en"}})
	page2 := FromRecords([]map[string]any{{"id": "2"}})

	out := Concat(page0, page1, nil, page2)

	ids, err := out.Column("id")
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2", "3", "2"}, ids, "no de-duplication, no reordering")
	assert.Equal(t, []string{"id", "lang"}, out.Columns())
}

func TestConcat_DoesNotAliasInputs(t *testing.T) {
	page := FromRecords([]map[string]any{{"id": "1"}})
	out := Concat(page)

	require.NoError(t, out.InsertConstant(0, "capture_timestamp", "now"))

	assert.False(t, page.HasColumn("capture_timestamp"))
	_, present := page.Rows()[0]["capture_timestamp"]
	assert.False(t, present)
}

func TestFromObject_Profile(t *testing.T) {
	profile := map[string]any{
		"id":       "44196397",
		"username": "elonmusk",
		"public_metrics": map[string]any{
			"followers_count": json.Number("100"),
			"following_count": json.Number("10"),
		},
	}

	tbl := FromObject(profile, "metric")

	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "metric", tbl.Columns()[0])

	metrics, err := tbl.Column("metric")
	require.NoError(t, err)
	assert.Equal(t, []any{"followers_count", "following_count"}, metrics)

	values, err := tbl.Column("public_metrics")
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("100"), json.Number("10")}, values)

	ids, err := tbl.Column("id")
	require.NoError(t, err)
	assert.Equal(t, []any{"44196397", "44196397"}, ids)
}

func TestFromObject_NoNestedObjects(t *testing.T) {
	tbl := FromObject(map[string]any{"id": "1"}, "metric")

	require.Equal(t, 1, tbl.Len())
	v, _ := tbl.Value(0, "metric")
	assert.Equal(t, "", v)
}

func TestExpandColumn(t *testing.T) {
	tbl := FromRecords([]map[string]any{tweet("1", 5), tweet("2", 7)})

	require.NoError(t, tbl.ExpandColumn("public_metrics"))

	assert.Equal(t, []string{"id", "text", "like_count", "retweet_count"}, tbl.Columns())
	likes, err := tbl.Column("like_count")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(5), float64(7)}, likes)
	assert.False(t, tbl.HasColumn("public_metrics"))
}

func TestExpandColumn_NilValues(t *testing.T) {
	tbl := FromRecords([]map[string]any{tweet("1", 5), {"id": "2", "public_metrics": nil}})

	require.NoError(t, tbl.ExpandColumn("public_metrics"))

	v, ok := tbl.Value(1, "like_count")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestExpandColumn_Collision(t *testing.T) {
	tbl := FromRecords([]map[string]any{
		{"id": "1", "public_metrics": map[string]any{"id": "x", "like_count": float64(1)}},
	})

	require.NoError(t, tbl.ExpandColumn("public_metrics"))

	assert.Equal(t, []string{"id", "public_metrics_id", "like_count"}, tbl.Columns())
}

func TestExpandColumn_Errors(t *testing.T) {
	empty := New()
	assert.ErrorIs(t, empty.ExpandColumn("public_metrics"), ErrColumnMissing)

	scalar := FromRecords([]map[string]any{{"public_metrics": "n/a"}})
	assert.ErrorIs(t, scalar.ExpandColumn("public_metrics"), ErrNotObject)
}

func TestInsertColumn(t *testing.T) {
	tbl := FromRecords([]map[string]any{{"id": "1"}, {"id": "2"}})

	require.NoError(t, tbl.InsertColumn(0, "query_term", []any{"a", "b"}))
	require.NoError(t, tbl.InsertConstant(0, "capture_timestamp", "t0"))

	assert.Equal(t, []string{"capture_timestamp", "query_term", "id"}, tbl.Columns())
	assert.ErrorIs(t, tbl.InsertConstant(0, "id", "x"), ErrColumnExists)
	assert.Error(t, tbl.InsertColumn(0, "short", []any{"only one"}))
}

func TestDropColumn(t *testing.T) {
	tbl := FromRecords([]map[string]any{{"id": "1", "capture_timestamp": "old"}})

	require.NoError(t, tbl.DropColumn("capture_timestamp"))
	assert.Equal(t, []string{"id"}, tbl.Columns())
	assert.ErrorIs(t, tbl.DropColumn("capture_timestamp"), ErrColumnMissing)

	require.NoError(t, tbl.InsertConstant(0, "capture_timestamp", "new"))
	v, _ := tbl.Value(0, "capture_timestamp")
	assert.Equal(t, "new", v)
}

func TestText(t *testing.T) {
	ts := time.Date(2022, time.November, 1, 12, 0, 0, 123456000, time.UTC)
	tbl := FromRecords([]map[string]any{{
		"count":   float64(42),
		"big":     json.Number("1587497866424651776"),
		"flag":    true,
		"when":    ts,
		"nested":  map[string]any{"a": float64(1)},
		"list":    []any{"x", "y"},
		"missing": nil,
	}})

	text := tbl.Text()
	row := text.Rows()[0]

	assert.Equal(t, "42", row["count"])
	assert.Equal(t, "1587497866424651776", row["big"])
	assert.Equal(t, "true", row["flag"])
	assert.Equal(t, "2022-11-01 12:00:00.123456", row["when"])
	assert.Equal(t, `{"a":1}`, row["nested"])
	assert.Equal(t, `["x","y"]`, row["list"])
	assert.Equal(t, "", row["missing"])

	// the source is untouched
	assert.Equal(t, float64(42), tbl.Rows()[0]["count"])
}
