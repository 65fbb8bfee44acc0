package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/contentsdk/internal/domain/models"
	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/internal/domain/service/mocks"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
)

func TestLongPollClient_WaitPreservesEndpointQuery(t *testing.T) {
	httpClient := new(mocks.MockHTTPClient)
	client := NewLongPollClient(httpClient, testBaseURL, nil, nil)
	info := &models.LongPollInfo{URL: testRealtimeURL, MaxRetries: 10, RetryTimeout: 610 * time.Second}

	httpClient.On("Get", mock.Anything, mock.MatchedBy(func(rawURL string) bool {
		q := queryOf(rawURL)
		return q.Get("channel") == "cc807c9c" && q.Get("stream_type") == "all" && q.Get("stream_position") == "42"
	}), mock.MatchedBy(func(opts domainService.RequestOptions) bool {
		return opts.Timeout == 610*time.Second
	})).Return(&domainService.Response{StatusCode: 200, Body: []byte(`{"message":"new_change"}`)}, nil).Once()

	signal, err := client.Wait(context.Background(), info, "42")
	require.NoError(t, err)
	assert.Equal(t, constants.SignalNewChange, signal)
	httpClient.AssertExpectations(t)
}

func TestLongPollClient_WaitUndecodableBodyIsOther(t *testing.T) {
	httpClient := new(mocks.MockHTTPClient)
	client := NewLongPollClient(httpClient, testBaseURL, nil, nil)
	httpClient.On("Get", mock.Anything, mock.Anything, mock.Anything).
		Return(&domainService.Response{StatusCode: 200, Body: []byte(`<html>`)}, nil)

	signal, err := client.Wait(context.Background(), &models.LongPollInfo{URL: testRealtimeURL}, "1")
	require.NoError(t, err)
	assert.Equal(t, constants.SignalOther, signal)
}

func TestLongPollClient_FetchEventsKeepsPageWithBadTimestamp(t *testing.T) {
	httpClient := new(mocks.MockHTTPClient)
	client := NewLongPollClient(httpClient, testBaseURL, nil, nil)
	httpClient.On("Get", mock.Anything, mock.Anything, mock.Anything).
		Return(&domainService.Response{StatusCode: 200, Body: []byte(`{"next_stream_position": 12, "entries": [
			{"event_id": "a", "created_at": "not a time"},
			{"event_id": "b", "created_at": "2026-03-01T12:00:00Z"}
		]}`)}, nil).Once()

	page, err := client.FetchEvents(context.Background(), "10", 100)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, models.StreamPosition("12"), page.NextStreamPosition)
	assert.True(t, page.Entries[0].CreatedAt.IsZero())
	assert.False(t, page.Entries[1].CreatedAt.IsZero())
}

func TestLongPollClient_Discover(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		wantURL   string
		wantError func(error) bool
	}{
		{
			name:    "realtime entry",
			body:    realtimeBody(testRealtimeURL, 10).body,
			wantURL: testRealtimeURL,
		},
		{
			name:      "no realtime entry",
			body:      `{"chunk_size":0,"entries":[]}`,
			wantError: errors.IsMalformed,
		},
		{
			name:      "not json",
			body:      `oops`,
			wantError: errors.IsMalformed,
		},
		{
			name:      "transport failure",
			err:       errors.ErrTransport("bad gateway", 502),
			wantError: errors.IsTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpClient := new(mocks.MockHTTPClient)
			client := NewLongPollClient(httpClient, testBaseURL+"/", nil, nil)
			if tt.err != nil {
				httpClient.On("Options", mock.Anything, testBaseURL+"/events", mock.Anything).Return(nil, tt.err)
			} else {
				httpClient.On("Options", mock.Anything, testBaseURL+"/events", mock.Anything).
					Return(&domainService.Response{StatusCode: 200, Body: []byte(tt.body)}, nil)
			}

			info, err := client.Discover(context.Background())
			if tt.wantError != nil {
				require.Error(t, err)
				assert.True(t, tt.wantError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, info.URL)
			assert.Equal(t, 10, info.MaxRetries)
		})
	}
}

func TestWithQuery(t *testing.T) {
	got, err := withQuery("https://h.example.com/p?a=1&stream_position=old", map[string][]string{"stream_position": {"new"}})
	require.NoError(t, err)
	q := queryOf(got)
	assert.Equal(t, "1", q.Get("a"))
	assert.Equal(t, []string{"new"}, q["stream_position"])
}
