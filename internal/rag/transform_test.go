package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformRewrites(t *testing.T) {
	client := &scriptedClient{responses: []string{"merge sort algorithm implementation"}}
	tr := NewTransformer(client, nil)

	got, err := tr.Transform(context.Background(), "find the sorting thing")
	require.NoError(t, err)
	assert.Equal(t, "merge sort algorithm implementation", got)
}

func TestTransformStripsQueryEcho(t *testing.T) {
	client := &scriptedClient{responses: []string{`Query: "meeting notes summary"`}}
	tr := NewTransformer(client, nil)

	got, err := tr.Transform(context.Background(), "what did I write about the meeting")
	require.NoError(t, err)
	assert.Equal(t, "meeting notes summary", got)
}

func TestTransformCapsTokens(t *testing.T) {
	long := strings.Repeat("word ", 30)
	client := &scriptedClient{responses: []string{long}}
	tr := NewTransformer(client, nil)

	got, err := tr.Transform(context.Background(), "original question")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(got), maxRewriteTokens)
}

func TestTransformEmptyRewriteReturnsOriginal(t *testing.T) {
	client := &scriptedClient{responses: []string{"   "}}
	tr := NewTransformer(client, nil)

	got, err := tr.Transform(context.Background(), "original question")
	require.NoError(t, err)
	assert.Equal(t, "original question", got)
}

func TestTransformUnchangedRewriteReturnsOriginal(t *testing.T) {
	client := &scriptedClient{responses: []string{"Original Question"}}
	tr := NewTransformer(client, nil)

	got, err := tr.Transform(context.Background(), "original question")
	require.NoError(t, err)
	assert.Equal(t, "original question", got, "case-insensitive match counts as unchanged")
}

func TestCleanRewrite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain rewrite", "plain rewrite"},
		{`"quoted rewrite"`, "quoted rewrite"},
		{"Query: labeled rewrite", "labeled rewrite"},
		{"Here you go.\nQuery: final answer", "final answer"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanRewrite(tt.in), tt.in)
	}
}
