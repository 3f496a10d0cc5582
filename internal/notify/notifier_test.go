package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifier_FiltersEvents(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventRoundSettled}, slog.Default())

	require.NoError(t, n.Notify(ctx, EventMarketCreated, "created", "x"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(ctx, EventRoundSettled, "settled", "x"))
	assert.Equal(t, []string{"settled"}, s.titles)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	ctx := context.Background()
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, slog.Default())

	require.NoError(t, n.Notify(ctx, "anything", "t", "m"))
	assert.Len(t, s.titles, 1)
}

func TestNotifier_CollectsSenderFailures(t *testing.T) {
	ctx := context.Background()
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.NotifyAll(ctx, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1, "failure in one sender must not block others")
}
