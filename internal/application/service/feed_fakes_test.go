package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/clock"
)

const (
	testBaseURL     = "https://api.example.com/2.0"
	testRealtimeURL = "https://realtime.example.com/subscribe?channel=cc807c9c&stream_type=all"
)

type scripted struct {
	body string
	err  error
}

type recordedCall struct {
	method string
	url    string
	opts   domainService.RequestOptions
	at     time.Time
}

// fakeAPI serves scripted responses per endpoint. When an endpoint's script is
// exhausted the call blocks until its context ends, which parks the feed.
type fakeAPI struct {
	clock clock.Clock

	mu       sync.Mutex
	discover []scripted
	waits    []scripted
	fetches  []scripted
	calls    []recordedCall
}

func newFakeAPI(c clock.Clock) *fakeAPI {
	return &fakeAPI{clock: c}
}

func (a *fakeAPI) scriptDiscover(entries ...scripted) { a.push(&a.discover, entries) }
func (a *fakeAPI) scriptWait(entries ...scripted) { a.push(&a.waits, entries) }
func (a *fakeAPI) scriptFetch(entries ...scripted) { a.push(&a.fetches, entries) }

func (a *fakeAPI) push(queue *[]scripted, entries []scripted) {
	a.mu.Lock()
	defer a.mu.Unlock()
	*queue = append(*queue, entries...)
}

func (a *fakeAPI) Options(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return a.serve(ctx, "OPTIONS", rawURL, opts, &a.discover)
}

func (a *fakeAPI) Get(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	if strings.HasPrefix(rawURL, "https://realtime.example.com") {
		return a.serve(ctx, "WAIT", rawURL, opts, &a.waits)
	}
	return a.serve(ctx, "FETCH", rawURL, opts, &a.fetches)
}

func (a *fakeAPI) Post(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return nil, fmt.Errorf("unexpected POST %s", rawURL)
}

func (a *fakeAPI) serve(ctx context.Context, method, rawURL string, opts domainService.RequestOptions, queue *[]scripted) (*domainService.Response, error) {
	call := recordedCall{method: method, url: rawURL, opts: opts, at: a.clock.Now()}
	a.mu.Lock()
	a.calls = append(a.calls, call)
	var next *scripted
	if len(*queue) > 0 {
		next = &(*queue)[0]
		*queue = (*queue)[1:]
	}
	a.mu.Unlock()

	if next == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if next.err != nil {
		return nil, next.err
	}
	return &domainService.Response{StatusCode: 200, Body: []byte(next.body)}, nil
}

func (a *fakeAPI) callsOf(method string) []recordedCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []recordedCall
	for _, c := range a.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func realtimeBody(endpoint string, maxRetries int) scripted {
	return scripted{body: fmt.Sprintf(`{"chunk_size":1,"entries":[{"type":"realtime_server","url":%q,"ttl":"10","max_retries":"%d","retry_timeout":610}]}`, endpoint, maxRetries)}
}

func longPollMessage(message string) scripted {
	return scripted{body: fmt.Sprintf(`{"message":%q}`, message)}
}

func eventPage(next string, ids ...string) scripted {
	entries := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, map[string]string{"event_id": id, "event_type": "ITEM_UPLOAD"})
	}
	body, _ := json.Marshal(map[string]any{
		"chunk_size":           len(ids),
		"next_stream_position": next,
		"entries":              entries,
	})
	return scripted{body: string(body)}
}

func queryOf(rawURL string) url.Values {
	u, _ := url.Parse(rawURL)
	return u.Query()
}

func eventIDs(events []models.Event) []string {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.EventID
	}
	return ids
}
