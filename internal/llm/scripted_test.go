package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triad/internal/agent/ports"
)

func TestScriptedClientServesQueueThenResponder(t *testing.T) {
	boom := errors.New("boom")
	client := NewScriptedClient("").Reply("first").Fail(boom).RespondWith(func(call int, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
		return &ports.CompletionResponse{Content: req.Messages[0].Content}, nil
	})

	ctx := context.Background()
	resp, err := client.Complete(ctx, ports.CompletionRequest{Messages: []ports.Message{ports.NewUserMessage("a")}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	_, err = client.Complete(ctx, ports.CompletionRequest{Messages: []ports.Message{ports.NewUserMessage("b")}})
	assert.ErrorIs(t, err, boom)

	resp, err = client.Complete(ctx, ports.CompletionRequest{Messages: []ports.Message{ports.NewUserMessage("echo")}})
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.Content)

	assert.Equal(t, 3, client.Calls())
	assert.Equal(t, "scripted", client.Model())
	reqs := client.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "b", reqs[1].Messages[0].Content)
}

func TestScriptedClientRecordsIndependentCopies(t *testing.T) {
	client := NewScriptedClient("m")
	msgs := []ports.Message{ports.NewUserMessage("original")}
	_, err := client.Complete(context.Background(), ports.CompletionRequest{Messages: msgs})
	require.NoError(t, err)

	msgs[0].Content = "mutated"
	assert.Equal(t, "original", client.Requests()[0].Messages[0].Content)
}

func TestScriptedClientHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScriptedClient("m").Complete(ctx, ports.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
