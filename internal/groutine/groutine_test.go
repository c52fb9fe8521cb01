package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NamesContext(t *testing.T) {
	got := make(chan string, 1)
	Go(nil, "session-scan", func(ctx context.Context) {
		got <- Name(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "session-scan", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
	assert.Empty(t, Name(context.Background()))
	assert.Empty(t, Name(nil)) //nolint:staticcheck
}

func TestGo_RecoversPanics(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	PanicLogger = logger
	defer func() { PanicLogger = nil }()

	done := make(chan struct{})
	Go(context.Background(), "session-write", func(context.Context) {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
	require.Eventually(t, func() bool { return hook.LastEntry() != nil }, time.Second, 5*time.Millisecond)

	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Recovered panic in goroutine", entry.Message)
	assert.Equal(t, "session-write", entry.Data["goroutine"])
	assert.Equal(t, "boom", entry.Data["panic"])
}
