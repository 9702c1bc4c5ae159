package telegram

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type feedPoller struct {
	updates []tele.Update
}

func (f *feedPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for _, u := range f.updates {
		dest <- u
	}
	<-stop
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return b
}

func textUpdate(id int, user int64, text string) tele.Update {
	sender := &tele.User{ID: user}
	return tele.Update{ID: id, Message: &tele.Message{
		ID:     id,
		Sender: sender,
		Chat:   &tele.Chat{ID: user, Type: tele.ChatPrivate},
		Text:   text,
	}}
}

func TestBatchPollerKeepsPerSenderOrder(t *testing.T) {
	b := offlineBot(t)

	const users, perUser = 5, 20
	var updates []tele.Update
	for i := 0; i < perUser; i++ {
		for u := int64(1); u <= users; u++ {
			updates = append(updates, textUpdate(len(updates)+1, u, strconv.Itoa(i)))
		}
	}

	var (
		mu   sync.Mutex
		seen = map[int64][]string{}
		all  = make(chan struct{})
	)
	b.Handle(tele.OnText, func(c tele.Context) error {
		mu.Lock()
		defer mu.Unlock()
		seen[c.Sender().ID] = append(seen[c.Sender().ID], c.Text())
		if n := countAll(seen); n == len(updates) {
			close(all)
		}
		return nil
	})

	p := &BatchPoller{Inner: &feedPoller{updates: updates}, Size: 7, Workers: 3}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		p.Poll(b, nil, stop)
		close(done)
	}()

	select {
	case <-all:
	case <-time.After(5 * time.Second):
		t.Fatal("updates were not processed")
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	for u := int64(1); u <= users; u++ {
		got := seen[u]
		if len(got) != perUser {
			t.Fatalf("user %d: %d updates, want %d", u, len(got), perUser)
		}
		for i, text := range got {
			if text != strconv.Itoa(i) {
				t.Fatalf("user %d out of order at %d: %v", u, i, got)
			}
		}
	}
}

func countAll(m map[int64][]string) int {
	n := 0
	for _, v := range m {
		n += len(v)
	}
	return n
}

func TestSenderKey(t *testing.T) {
	b := offlineBot(t)
	if got := senderKey(b, textUpdate(3, 42, "x")); got != "user:42" {
		t.Fatalf("senderKey = %s", got)
	}
	if got := senderKey(b, tele.Update{ID: 9}); got != "update:9" {
		t.Fatalf("senderKey = %s", got)
	}
}

func TestBuildPollerModes(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "WEBHOOK", Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://x"}})
	wh, ok := p.Inner.(*tele.Webhook)
	if !ok || wh.Listen != "0.0.0.0:8443" {
		t.Fatalf("inner = %#v", p.Inner)
	}

	p = BuildPoller(PollerOptions{LongPollTimeoutSeconds: 25})
	lp, ok := p.Inner.(*tele.LongPoller)
	if !ok || lp.Timeout != 25*time.Second {
		t.Fatalf("inner = %s", fmt.Sprintf("%#v", p.Inner))
	}
}
