package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/swdee/go-reidtrack/tracker"
)

// Writer stores frame records on a background goroutine so the tracking
// loop never waits on the database unless the buffer is full
type Writer struct {
	store      *Store
	runID      string
	embeddings bool
	records    chan *FrameRecord
	done       chan struct{}
	close      sync.Once
	log        zerolog.Logger

	mu      sync.Mutex
	err     error
	written int
}

// NewWriter starts a writer storing into the run of store. Buffer is the
// number of frames queued before ObserveFrame blocks.
func NewWriter(store *Store, runID string, buffer int, embeddings bool, log zerolog.Logger) *Writer {

	w := &Writer{
		store:      store,
		runID:      runID,
		embeddings: embeddings,
		records:    make(chan *FrameRecord, buffer),
		done:       make(chan struct{}),
		log:        log,
	}

	go w.loop()

	return w
}

func (w *Writer) loop() {

	defer close(w.done)

	for rec := range w.records {

		err := w.store.WriteFrame(context.Background(), w.runID, rec)

		w.mu.Lock()
		if err != nil && w.err == nil {
			w.err = err
			w.log.Error().Err(err).
				Str("sequence", rec.Sequence).
				Int("frame", rec.Frame).
				Msg("Audit write failed, further frames are dropped")
		}
		if err == nil {
			w.written++
		}
		w.mu.Unlock()
	}
}

// ForSequence returns an engine observer recording the frames of the named
// sequence. Observers of different sequences may be used concurrently.
func (w *Writer) ForSequence(name string) tracker.Observer {
	return &sequenceWriter{w: w, sequence: name, gt: newGroundTruth()}
}

type sequenceWriter struct {
	w        *Writer
	sequence string
	gt       *groundTruth
}

// ObserveFrame implements tracker.Observer
func (s *sequenceWriter) ObserveFrame(a *tracker.FrameAudit) {

	if s.w.Err() != nil {
		return
	}

	rec := NewFrameRecord(s.sequence, a, s.w.embeddings)
	rec.Diagnostics = s.gt.diagnose(a)

	s.w.records <- rec
}

// Err returns the first write error
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Written returns the number of frames stored so far
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes all queued frames and returns the first write error. No
// observer of the writer may be called afterwards.
func (w *Writer) Close() error {
	w.close.Do(func() {
		close(w.records)
	})
	<-w.done
	return w.Err()
}
