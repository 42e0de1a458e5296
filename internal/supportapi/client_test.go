// ABOUTME: Tests for the support API client against an httptest server
// ABOUTME: Covers request shapes, error mapping, 404 detection and local validation

package supportapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := New(srv.URL+"/api/", opts...)
	require.NoError(t, err)
	return client, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("")
	require.Error(t, err)

	_, err = New("ftp://example.com")
	require.Error(t, err)

	c, err := New("https://example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api", c.BaseURL())
}

func TestCreateSession(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/session", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "en-US", body["locale"])
		assert.Equal(t, "loop-support/test", body["user_agent"])
		assert.Equal(t, "cli://chat", body["referer"])

		writeJSON(w, http.StatusOK, map[string]string{"session_id": "s-1"})
	})

	sess, err := client.CreateSession(t.Context(), Metadata{
		Locale:    "en-US",
		UserAgent: "loop-support/test",
		Referer:   "cli://chat",
	})
	require.NoError(t, err)
	assert.Equal(t, "s-1", sess.ID)
}

func TestCreateSession_EmptyID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	_, err := client.CreateSession(t.Context(), Metadata{})
	require.Error(t, err)
}

func TestFetchConversation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/session/s-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"ticket": {"id": 7, "sessionId": "s-1", "status": "claimed", "category": "Billing",
				"priority": 1, "assignedAgentId": 3, "contactName": null, "contactEmail": null,
				"createdAt": "2025-03-01T10:00:00.123456", "claimedAt": "2025-03-01T10:01:00Z", "closedAt": null},
			"messages": [
				{"id": 42, "ticketId": 7, "sessionId": "s-1", "sender": "visitor", "body": "hello", "createdAt": "2025-03-01T10:00:00"},
				{"id": "43", "ticketId": 7, "sessionId": "s-1", "sender": "agent", "body": null, "createdAt": "2025-03-01T10:02:00+00:00"}
			]
		}`))
	})

	snap, err := client.FetchConversation(t.Context(), "s-1")
	require.NoError(t, err)

	require.NotNil(t, snap.Ticket)
	assert.Equal(t, int64(7), snap.Ticket.ID)
	assert.Equal(t, TicketStatusClaimed, snap.Ticket.Status)
	require.NotNil(t, snap.Ticket.Category)
	assert.Equal(t, "Billing", *snap.Ticket.Category)
	require.NotNil(t, snap.Ticket.AssignedAgentID)
	assert.Equal(t, int64(3), *snap.Ticket.AssignedAgentID)
	assert.Nil(t, snap.Ticket.ClosedAt)
	require.NotNil(t, snap.Ticket.ClaimedAt)
	assert.Equal(t, 123456000, snap.Ticket.CreatedAt.Nanosecond())

	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "42", snap.Messages[0].ID)
	assert.Equal(t, "hello", snap.Messages[0].Text())
	assert.Equal(t, "43", snap.Messages[1].ID)
	assert.Equal(t, SenderAgent, snap.Messages[1].Sender)
	assert.Equal(t, "", snap.Messages[1].Text())
}

func TestFetchConversation_EmptySnapshot(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ticket": null}`))
	})

	snap, err := client.FetchConversation(t.Context(), "s-1")
	require.NoError(t, err)
	assert.Nil(t, snap.Ticket)
	assert.NotNil(t, snap.Messages)
	assert.Empty(t, snap.Messages)
}

// longHistory returns a snapshot body of n messages with bodies of size bytes.
func longHistory(n, size int) []byte {
	var b strings.Builder
	b.WriteString(`{"ticket": null, "messages": [`)
	body := strings.Repeat("x", size)
	for i := range n {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`{"id": ` + strconv.Itoa(i+1) + `, "ticketId": 1, "sessionId": "s", "sender": "visitor", "body": "` +
			body + `", "createdAt": "2025-03-01T10:00:00"}`)
	}
	b.WriteString(`]}`)
	return []byte(b.String())
}

func TestFetchConversation_LongHistory(t *testing.T) {
	payload := longHistory(2500, 500)
	require.Greater(t, len(payload), 1<<20)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	})

	snap, err := client.FetchConversation(t.Context(), "s")
	require.NoError(t, err)
	require.Len(t, snap.Messages, 2500)
	assert.Equal(t, "2500", snap.Messages[2499].ID)
}

func TestFetchConversation_ResponseTooLarge(t *testing.T) {
	payload := longHistory(50, 100)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}, WithMaxResponseBytes(int64(len(payload)-1)))

	snap, err := client.FetchConversation(t.Context(), "s")
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.Contains(t, err.Error(), "exceeds")
	assert.Equal(t, http.StatusOK, StatusCode(err))
	assert.False(t, IsNotFound(err))
}

func TestFetchConversation_ResponseAtLimit(t *testing.T) {
	payload := longHistory(50, 100)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}, WithMaxResponseBytes(int64(len(payload))))

	snap, err := client.FetchConversation(t.Context(), "s")
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 50)
}

func TestFetchConversation_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
	})

	_, err := client.FetchConversation(t.Context(), "gone")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Session not found", err.Error())

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, map[string]any{"detail": "Session not found"}, apiErr.Detail)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail field", http.StatusBadRequest, `{"detail": "Message body is required"}`, "Message body is required"},
		{"error field", http.StatusForbidden, `{"error": "blocked"}`, "blocked"},
		{"detail wins over error", http.StatusConflict, `{"detail": "d", "error": "e"}`, "d"},
		{"non-string detail", http.StatusUnprocessableEntity, `{"detail": [{"loc": "body"}]}`, "request to /session/s-1 failed"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "request to /session/s-1 failed"},
		{"empty body", http.StatusInternalServerError, ``, "request to /session/s-1 failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.FetchConversation(t.Context(), "s-1")
			require.Error(t, err)
			assert.Equal(t, tt.message, err.Error())
			assert.Equal(t, tt.status, StatusCode(err))
			assert.False(t, IsNotFound(err))
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client, err := New(srv.URL)
	require.NoError(t, err)
	srv.Close()

	_, err = client.FetchConversation(t.Context(), "s-1")
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
	assert.False(t, IsNotFound(err))
}

func TestSendMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/session/s-1/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "I need help", body["body"])
		assert.Equal(t, "Billing", body["category"])
		assert.Equal(t, "high", body["priority"])
		assert.Equal(t, "Ada", body["contact_name"])
		assert.Equal(t, "ada@example.com", body["contact_email"])

		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ticket_id": 7, "message_id": 42})
	})

	category := "Billing"
	res, err := client.SendMessage(t.Context(), "s-1", MessageInput{
		Body:         "I need help",
		Category:     &category,
		Priority:     PriorityHigh,
		ContactName:  "Ada",
		ContactEmail: "ada@example.com",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int64(7), res.TicketID)
	assert.Equal(t, "42", res.MessageID)
}

func TestSendMessage_OmitsOptionalFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"body": "hi"}, body)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ticket_id": 1, "message_id": 2})
	})

	_, err := client.SendMessage(t.Context(), "s-1", MessageInput{Body: "hi"})
	require.NoError(t, err)
}

func TestSendMessage_BlankBodyNoRequest(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	for _, body := range []string{"", "   ", "\n\t"} {
		_, err := client.SendMessage(t.Context(), "s-1", MessageInput{Body: body})
		assert.ErrorIs(t, err, ErrEmptyBody)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestCloseTicket(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tickets/7/close", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ticket_id": 7, "message": "Ticket closed successfully"})
	})

	res, err := client.CloseTicket(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.TicketID)
	assert.Equal(t, "Ticket closed successfully", res.Message)
}

func TestCloseTicket_ZeroIDNoRequest(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.CloseTicket(t.Context(), 0)
	assert.ErrorIs(t, err, ErrMissingTicketID)
	_, err = client.ReopenTicket(t.Context(), 0)
	assert.ErrorIs(t, err, ErrMissingTicketID)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestReopenAndNewTicket(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ticket_id": 9, "message": "ok"})
	})

	_, err := client.ReopenTicket(t.Context(), 9)
	require.NoError(t, err)
	res, err := client.NewTicket(t.Context(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.TicketID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/api/tickets/9/reopen", "/api/session/s-1/new-ticket"}, paths)
}

func TestHealth(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	require.NoError(t, client.Health(t.Context()))
}
