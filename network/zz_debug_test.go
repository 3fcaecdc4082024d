package network

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestZZDebugDispose(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	obs := &recordingObserver{}
	h := NewHTTP(server.URL)
	stream := h.Execute(context.Background(), mustRequest(t), nil)
	sub := stream.Subscribe(obs)
	<-started
	fmt.Printf("before dispose: closed=%v cancel-nil=%v\n", sub.Closed(), sub.cancel == nil)
	sub.Dispose()
	select {
	case <-canceled:
		fmt.Println("CANCELED OK")
	case <-time.After(2 * time.Second):
		fmt.Println("NOT CANCELED")
	}
}
