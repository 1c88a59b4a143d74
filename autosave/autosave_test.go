package autosave

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zipcard/zipcard"
)

type persistRecorder struct {
	mu      sync.Mutex
	docs    []zipcard.ProfileDocument
	times   []time.Time
	failErr error
}

func (r *persistRecorder) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *persistRecorder) persist(ctx context.Context, doc zipcard.ProfileDocument) error {
	r.mu.Lock()
	failErr := r.failErr
	r.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	r.times = append(r.times, time.Now())
	return nil
}

func (r *persistRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func (r *persistRecorder) last() zipcard.ProfileDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[len(r.docs)-1]
}

func testDoc(title string) zipcard.ProfileDocument {
	doc := zipcard.NewProfileDocument(1, "makin")
	doc.FullName = "A"
	doc.Title = title
	return doc
}

func TestDebounceBurstPersistsOnce(t *testing.T) {
	assert := assert.New(t)

	recorder := &persistRecorder{}
	coordinator := New(recorder.persist, WithDelay(EditorDelay))
	defer coordinator.Close()

	coordinator.Observe(testDoc("one"))
	time.Sleep(50 * time.Millisecond)
	coordinator.Observe(testDoc("two"))
	time.Sleep(50 * time.Millisecond)
	coordinator.Observe(testDoc("three"))
	lastChange := time.Now()

	time.Sleep(EditorDelay + 200*time.Millisecond)

	if !assert.Equal(1, recorder.count()) {
		return
	}
	assert.Equal("three", recorder.last().Title)

	recorder.mu.Lock()
	firedAfter := recorder.times[0].Sub(lastChange)
	recorder.mu.Unlock()
	assert.GreaterOrEqual(firedAfter, EditorDelay-20*time.Millisecond)
	assert.Less(firedAfter, 2*EditorDelay)
}

func TestNoopSuppression(t *testing.T) {
	assert := assert.New(t)

	recorder := &persistRecorder{}
	coordinator := New(recorder.persist, WithDelay(50*time.Millisecond))
	defer coordinator.Close()

	doc := testDoc("same")
	coordinator.Observe(doc)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(1, recorder.count())

	// identical snapshot again: same fingerprint, no second persist
	coordinator.Observe(doc)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(1, recorder.count())
}

func TestRevertingToBaselineCancelsPendingSave(t *testing.T) {
	recorder := &persistRecorder{}
	coordinator := New(recorder.persist, WithDelay(50*time.Millisecond))
	defer coordinator.Close()

	baseline := testDoc("saved")
	coordinator.Seed(baseline)

	coordinator.Observe(testDoc("dirty"))
	coordinator.Observe(baseline)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, recorder.count())
}

func TestFlushBypassesDebounce(t *testing.T) {
	assert := assert.New(t)

	recorder := &persistRecorder{}
	coordinator := New(recorder.persist, WithDelay(10*time.Second))
	defer coordinator.Close()

	coordinator.Observe(testDoc("now"))
	err := coordinator.Flush(context.Background())
	assert.NoError(err)
	assert.Equal(1, recorder.count())
	assert.Equal("now", recorder.last().Title)

	// baseline advanced: immediate second flush is a no-op
	assert.NoError(coordinator.Flush(context.Background()))
	assert.Equal(1, recorder.count())
}

func TestFailedPersistKeepsBaselineForRetry(t *testing.T) {
	assert := assert.New(t)

	recorder := &persistRecorder{}
	recorder.setFail(errors.New("backend down"))
	coordinator := New(recorder.persist, WithDelay(10*time.Second))
	defer coordinator.Close()

	coordinator.Observe(testDoc("unsaved"))
	assert.Error(coordinator.Flush(context.Background()))
	assert.Equal(0, recorder.count())

	// backend recovers; same snapshot persists because the baseline
	// never advanced
	recorder.setFail(nil)
	assert.NoError(coordinator.Flush(context.Background()))
	assert.Equal(1, recorder.count())
	assert.Equal("unsaved", recorder.last().Title)
}

func TestCloseCancelsPendingTimer(t *testing.T) {
	recorder := &persistRecorder{}
	coordinator := New(recorder.persist, WithDelay(50*time.Millisecond))

	coordinator.Observe(testDoc("torn down"))
	coordinator.Close()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, recorder.count())

	// observations after close are ignored
	coordinator.Observe(testDoc("late"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, recorder.count())
}

func TestSingleFlightSerializesSaves(t *testing.T) {
	assert := assert.New(t)

	var inFlight int32
	var maxInFlight int32
	var calls int32
	persist := func(ctx context.Context, doc zipcard.ProfileDocument) error {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, current) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		atomic.AddInt32(&calls, 1)
		return nil
	}

	coordinator := New(persist, WithDelay(20*time.Millisecond))
	defer coordinator.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		title := string(rune('a' + i))
		go func() {
			defer wg.Done()
			coordinator.Observe(testDoc(title))
			_ = coordinator.Flush(context.Background())
		}()
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	assert.Equal(int32(1), atomic.LoadInt32(&maxInFlight))
	assert.GreaterOrEqual(atomic.LoadInt32(&calls), int32(1))
}

func TestFingerprintDeterministic(t *testing.T) {
	doc := testDoc("stable")
	assert.Equal(t, Fingerprint(doc), Fingerprint(doc))
	other := testDoc("different")
	assert.NotEqual(t, Fingerprint(doc), Fingerprint(other))
}
