package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/replybridge/internal/session"
	"github.com/wolfman30/replybridge/pkg/logging"
)

type stubLLMClient struct {
	mu        sync.Mutex
	responses []LLMResponse
	errs      []error
	requests  []LLMRequest
	block     bool
}

func (s *stubLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	if idx < len(s.errs) && s.errs[idx] != nil {
		return LLMResponse{}, s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return LLMResponse{Text: "ok"}, nil
}

func (s *stubLLMClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func historyLen(t *testing.T, store *session.Store, sender string) int {
	t.Helper()
	h, _, err := store.Snapshot(context.Background(), sender)
	require.NoError(t, err)
	return len(h)
}

func TestCompleterGrowsHistoryByPairs(t *testing.T) {
	store := session.NewStore(logging.Discard())
	llm := &stubLLMClient{}
	c := NewCompleter(store, llm, logging.Discard())

	for n := 1; n <= 4; n++ {
		reply := c.Complete(context.Background(), "+15550001", "question")
		require.Equal(t, "ok", reply)
		require.Equal(t, 1+2*n, historyLen(t, store, "+15550001"))
	}
}

func TestCompleterSendsFullHistory(t *testing.T) {
	store := session.NewStore(logging.Discard(), session.WithSystemPrompt("be brief"))
	llm := &stubLLMClient{responses: []LLMResponse{{Text: "first"}, {Text: "second"}}}
	c := NewCompleter(store, llm, logging.Discard(), WithModel("gpt-test"))

	c.Complete(context.Background(), "+1", "one")
	c.Complete(context.Background(), "+1", "two")

	require.Len(t, llm.requests, 2)
	last := llm.requests[1]
	assert.Equal(t, "gpt-test", last.Model)
	assert.Equal(t, []ChatMessage{
		{Role: ChatRoleSystem, Content: "be brief"},
		{Role: ChatRoleUser, Content: "one"},
		{Role: ChatRoleAssistant, Content: "first"},
		{Role: ChatRoleUser, Content: "two"},
	}, last.Messages)
}

func TestCompleterRollsBackOnError(t *testing.T) {
	store := session.NewStore(logging.Discard())
	llm := &stubLLMClient{errs: []error{nil, errors.New("upstream 500")}}
	c := NewCompleter(store, llm, logging.Discard(), WithDegradedReply("try later"))

	require.Equal(t, "ok", c.Complete(context.Background(), "+1", "hi"))
	before, _, err := store.Snapshot(context.Background(), "+1")
	require.NoError(t, err)

	reply := c.Complete(context.Background(), "+1", "again")
	assert.Equal(t, "try later", reply)

	after, _, err := store.Snapshot(context.Background(), "+1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCompleterRollsBackOnEmptyReply(t *testing.T) {
	store := session.NewStore(logging.Discard())
	llm := &stubLLMClient{responses: []LLMResponse{{Text: "   "}}}
	c := NewCompleter(store, llm, logging.Discard())

	reply := c.Complete(context.Background(), "+1", "hi")
	assert.Equal(t, DefaultDegradedReply, reply)
	assert.Equal(t, 1, historyLen(t, store, "+1"))
}

func TestCompleterTimeoutTriggersRollback(t *testing.T) {
	store := session.NewStore(logging.Discard())
	llm := &stubLLMClient{block: true}
	c := NewCompleter(store, llm, logging.Discard(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	reply := c.Complete(context.Background(), "+1", "hi")
	assert.Equal(t, DefaultDegradedReply, reply)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, historyLen(t, store, "+1"))
}

type flakyHistoryStore struct {
	inner       *session.Store
	failOnRole  string
	removeCalls int
}

func (f *flakyHistoryStore) Append(ctx context.Context, sender, role, content string) (session.History, error) {
	if role == f.failOnRole {
		return nil, errors.New("store unavailable")
	}
	return f.inner.Append(ctx, sender, role, content)
}

func (f *flakyHistoryStore) RemoveLast(ctx context.Context, sender string) error {
	f.removeCalls++
	return f.inner.RemoveLast(ctx, sender)
}

func TestCompleterUserAppendFailureSkipsCall(t *testing.T) {
	inner := session.NewStore(logging.Discard())
	store := &flakyHistoryStore{inner: inner, failOnRole: session.RoleUser}
	llm := &stubLLMClient{}
	c := NewCompleter(store, llm, logging.Discard())

	assert.Equal(t, DefaultDegradedReply, c.Complete(context.Background(), "+1", "hi"))
	assert.Equal(t, 0, llm.calls())
	assert.Equal(t, 0, store.removeCalls)
}

func TestCompleterAssistantAppendFailureKeepsReplyWithoutOrphan(t *testing.T) {
	inner := session.NewStore(logging.Discard())
	store := &flakyHistoryStore{inner: inner, failOnRole: session.RoleAssistant}
	llm := &stubLLMClient{responses: []LLMResponse{{Text: "answer"}}}
	c := NewCompleter(store, llm, logging.Discard())

	assert.Equal(t, "answer", c.Complete(context.Background(), "+1", "hi"))
	assert.Equal(t, 1, store.removeCalls)
	assert.Equal(t, 1, historyLen(t, inner, "+1"))
}

func TestCompleterConcurrentSendersStayIsolated(t *testing.T) {
	store := session.NewStore(logging.Discard())
	c := NewCompleter(store, &stubLLMClient{}, logging.Discard())

	senders := []string{"+1", "+2", "+3", "+4"}
	var wg sync.WaitGroup
	for _, s := range senders {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				c.Complete(context.Background(), sender, "msg")
			}
		}(s)
	}
	wg.Wait()

	for _, s := range senders {
		assert.Equal(t, 11, historyLen(t, store, s), s)
	}
}

func TestNewCompleterPanicsWithoutDeps(t *testing.T) {
	assert.Panics(t, func() { NewCompleter(nil, &stubLLMClient{}, nil) })
	assert.Panics(t, func() { NewCompleter(session.NewStore(nil), nil, nil) })
}
