package commands

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
	"github.com/vulntor/bytehunter/pkg/event"
)

// overlapWriter records whether two writes were ever in flight at once.
type overlapWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (w *overlapWriter) Write(p []byte) (int, error) {
	if w.inFlight.Add(1) > 1 {
		w.overlap.Store(true)
	}
	defer w.inFlight.Add(-1)
	time.Sleep(time.Millisecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestProgressHandler_SerializesConcurrentEvents(t *testing.T) {
	out := &overlapWriter{}
	handler := progressHandler(format.New(&bytes.Buffer{}, out, format.ModeText, false, false))

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler(context.Background(), event.TaskEvent{TaskID: fmt.Sprintf("task_%d", i), Category: "recon", Status: "Running"})
		}()
	}
	wg.Wait()

	assert.False(t, out.overlap.Load(), "progress lines were written concurrently")
	assert.Len(t, strings.Split(strings.TrimSpace(out.buf.String()), "\n"), n)
}

func TestProgressHandler_IgnoresOtherPayloads(t *testing.T) {
	var stderr bytes.Buffer
	handler := progressHandler(format.New(&bytes.Buffer{}, &stderr, format.ModeText, false, false))

	handler(context.Background(), "not an event")
	assert.Empty(t, stderr.String())
}
