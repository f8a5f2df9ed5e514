package feed

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nmxmxh/bp-runtime/engine/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingEnqueuer) EnqueueExternalEvent(e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEnqueuer) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event{}, r.events...)
}

func TestBridgeEnqueuesDecodedFrames(t *testing.T) {
	target := &recordingEnqueuer{}
	bridge := New(target, nil)
	srv := httptest.NewServer(bridge)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"ext1"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"ext2","payload":"p"}`)))

	require.Eventually(t, func() bool {
		return len(target.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	events := target.snapshot()
	assert.Equal(t, "ext1", events[0].Name)
	assert.Equal(t, "ext2", events[1].Name)
	assert.Equal(t, "p", events[1].Payload)
}
