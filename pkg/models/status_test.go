package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveStatus_String(t *testing.T) {
	tests := []struct {
		status ResolveStatus
		want   string
	}{
		{ResolveStatusUnset, "unset"},
		{ResolveStatusResolved, "resolved"},
		{ResolveStatusCacheHit, "cache_hit"},
		{ResolveStatusFallback, "fallback"},
		{ResolveStatusSkipped, "skipped"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestResolveStatus_IsValid(t *testing.T) {
	tests := []struct {
		status ResolveStatus
		want   bool
	}{
		{ResolveStatusResolved, true},
		{ResolveStatusCacheHit, true},
		{ResolveStatusFallback, true},
		{ResolveStatusSkipped, true},
		{ResolveStatusUnset, false},
		{ResolveStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "ResolveStatus(%q).IsValid()", string(tt.status))
	}
}

func TestSearchStatus_String(t *testing.T) {
	tests := []struct {
		status SearchStatus
		want   string
	}{
		{SearchStatusUnset, "unset"},
		{SearchStatusSuccess, "success"},
		{SearchStatusFailure, "failure"},
		{SearchStatusEmpty, "empty"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestSearchStatus_IsValid(t *testing.T) {
	tests := []struct {
		status SearchStatus
		want   bool
	}{
		{SearchStatusSuccess, true},
		{SearchStatusFailure, true},
		{SearchStatusEmpty, true},
		{SearchStatusUnset, false},
		{SearchStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "SearchStatus(%q).IsValid()", string(tt.status))
	}
}
