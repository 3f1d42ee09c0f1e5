package locks_test

import (
	"testing"
	"time"

	"github.com/omnilayer/omnicore/util/locks"
)

func TestWaitGroupBlocksUntilDone(t *testing.T) {
	var wg locks.WaitGroup
	wg.Add()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Wait returned before Done was called")
	case <-time.After(20 * time.Millisecond):
	}

	wg.Done()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after Done")
	}
}

func TestWaitGroupPanicsOnExtraDone(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic from an unmatched Done")
		}
	}()
	var wg locks.WaitGroup
	wg.Done()
}
