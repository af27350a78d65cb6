package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolutions_URLs_PreservesOrder(t *testing.T) {
	rs := Resolutions{
		{Index: 0, Original: "http://a.example/r1", URL: "https://a.example/final"},
		{Index: 1, Original: "http://b.example/r2", URL: "http://b.example/r2", Err: errors.New("boom")},
		{Index: 2, Original: "http://c.example/r3", URL: "https://c.example/final"},
	}

	urls := rs.URLs()
	require.Len(t, urls, 3)
	assert.Equal(t, "https://a.example/final", urls[0])
	assert.Equal(t, "http://b.example/r2", urls[1], "failed entry should contribute its fallback URL")
	assert.Equal(t, "https://c.example/final", urls[2])
}

func TestResolutions_URLs_Empty(t *testing.T) {
	urls := Resolutions{}.URLs()
	assert.Empty(t, urls)
}

func TestResolutions_FailureCount(t *testing.T) {
	rs := Resolutions{
		{URL: "https://ok.example"},
		{URL: "http://fail.example", Err: errors.New("timeout")},
		{URL: "http://fail2.example", Err: errors.New("refused")},
	}
	assert.Equal(t, 2, rs.FailureCount())
	assert.Equal(t, 0, Resolutions{}.FailureCount())
}

func TestSearchResult_OmitEmpty(t *testing.T) {
	r := SearchResult{
		Title: "Example",
		URL:   "https://example.com",
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "content")
	assert.NotContains(t, raw, "more")
	assert.NotContains(t, raw, "related_links")
	assert.NotContains(t, raw, "source")
}

func TestSearchResult_JSONRoundTrip(t *testing.T) {
	r := SearchResult{
		Title:   "Example",
		URL:     "https://example.com",
		Content: "snippet",
		Source:  "example.com",
		More: []TitleContent{
			{Title: "Alt title", Content: "alt snippet"},
		},
		RelatedLinks: []RelatedLink{
			{Title: "Docs", URL: "https://example.com/docs"},
		},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got SearchResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r, got)
}

func TestSearchRecordDB_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second).UTC()
	rec := SearchRecordDB{
		ID:          "01234567-89ab-cdef-0123-456789abcdef",
		Query:       "golang concurrency",
		Engine:      "baidu",
		Status:      SearchStatusSuccess,
		ResultCount: 1,
		Results: []SearchResult{
			{Title: "Go blog", URL: "https://go.dev/blog"},
		},
		SearchedAt: now,
		Elapsed:    1500 * time.Millisecond,
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var got SearchRecordDB
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec, got)
}

func TestSearchRecordDB_OmitEmpty(t *testing.T) {
	rec := SearchRecordDB{
		ID:         "id",
		Query:      "q",
		Engine:     "baidu",
		Status:     SearchStatusEmpty,
		SearchedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "error_type")
	assert.NotContains(t, raw, "\"results\"")
}
