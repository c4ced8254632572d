package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

type scriptedPoller struct {
	updates []telebot.Update
}

func (p *scriptedPoller) Poll(_ *telebot.Bot, dest chan telebot.Update, stop chan struct{}) {
	for _, u := range p.updates {
		select {
		case dest <- u:
		case <-stop:
			return
		}
	}
	<-stop
}

type recordingSink struct {
	mu   sync.Mutex
	got  []update.Update
	err  error
	seen chan struct{}
}

func (s *recordingSink) Submit(_ context.Context, upd update.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, upd)
	s.seen <- struct{}{}
	return s.err
}

func TestBot_RunSubmitsConvertedUpdates(t *testing.T) {
	poller := &scriptedPoller{updates: []telebot.Update{
		{ID: 1, Message: &telebot.Message{Sender: &telebot.User{ID: 1}, Chat: &telebot.Chat{ID: 1}, Text: "/start"}},
		{ID: 2, EditedMessage: &telebot.Message{}},
		{ID: 3, Callback: &telebot.Callback{Sender: &telebot.User{ID: 1}, Data: "ok"}},
	}}
	b := newBot(nil, poller, testLogger())
	sink := &recordingSink{seen: make(chan struct{}, 10)}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx, sink) }()

	for i := 0; i < 2; i++ {
		select {
		case <-sink.seen:
		case <-time.After(2 * time.Second):
			t.Fatal("update was not submitted")
		}
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.got, 2)
	assert.Equal(t, int64(1), sink.got[0].ID)
	assert.Equal(t, update.KindCallback, sink.got[1].Kind())
}

func TestBot_RunStopsWhenRunnerClosed(t *testing.T) {
	poller := &scriptedPoller{updates: []telebot.Update{
		{ID: 1, Message: &telebot.Message{Sender: &telebot.User{ID: 1}, Chat: &telebot.Chat{ID: 1}, Text: "hi"}},
	}}
	b := newBot(nil, poller, testLogger())
	sink := &recordingSink{seen: make(chan struct{}, 10), err: dispatch.ErrRunnerClosed}

	err := b.Run(context.Background(), sink)

	assert.ErrorIs(t, err, dispatch.ErrRunnerClosed)
}
