package runner_test

import (
	"context"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/autobet/internal/runner"
)

func TestStopFlag_Monotonic(t *testing.T) {
	f := runner.NewStopFlag()
	assert.False(t, f.Stopped())

	f.Stop()
	f.Stop()
	assert.True(t, f.Stopped())

	select {
	case <-f.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestListenInput_StopsOnQ(t *testing.T) {
	f := runner.NewStopFlag()
	runner.ListenInput(context.Background(), strings.NewReader("hello\n  Q \nmore\n"), f)
	assert.True(t, f.Stopped())
}

func TestListenInput_EOFWithoutQ(t *testing.T) {
	f := runner.NewStopFlag()
	runner.ListenInput(context.Background(), strings.NewReader("quit\nnope\n"), f)
	assert.False(t, f.Stopped())
}

func TestWatchSignals_SecondSignalCancels(t *testing.T) {
	f := runner.NewStopFlag()
	hard, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	sigs <- syscall.SIGINT
	sigs <- syscall.SIGINT

	done := make(chan struct{})
	go func() {
		runner.WatchSignals(context.Background(), sigs, f, cancel)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WatchSignals did not return")
	}
	assert.True(t, f.Stopped())
	assert.Error(t, hard.Err())
}

func TestWatchSignals_FirstSignalOnlyStops(t *testing.T) {
	f := runner.NewStopFlag()
	hard, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx, stopWatch := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	sigs <- syscall.SIGTERM

	done := make(chan struct{})
	go func() {
		runner.WatchSignals(ctx, sigs, f, cancel)
		close(done)
	}()

	assert.Eventually(t, f.Stopped, time.Second, 5*time.Millisecond)
	assert.NoError(t, hard.Err())
	stopWatch()
	<-done
}
