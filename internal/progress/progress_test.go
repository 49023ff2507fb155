package progress_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cryonoid/TwitLysis/internal/progress"
)

func drain(r *progress.Reporter) []progress.Event {
	var out []progress.Event
	for ev := range r.Events() {
		out = append(out, ev)
	}
	return out
}

func TestReporter_OrderAndProgress(t *testing.T) {
	r := progress.NewReporter(16, nil)
	r.Emit(progress.Info, "[START] Analysis for %q", "go")
	r.Step(1, "Collecting")
	r.Emit(progress.Warning, "slow page")
	r.Step(5, "Saving results")
	r.Complete("[COMPLETE] done")
	r.Close()

	events := drain(r)
	require.Len(t, events, 5)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, 0, events[0].Progress)
	assert.Equal(t, "[STEP 1/5] Collecting", events[1].Message)
	assert.Equal(t, 20, events[1].Progress)
	assert.Equal(t, 20, events[2].Progress)
	assert.Equal(t, progress.Warning, events[2].Level)
	assert.Equal(t, 95, events[3].Progress)
	assert.Equal(t, 100, events[4].Progress)
	assert.True(t, events[4].Done)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, progress.Percent(0))
	assert.Equal(t, 40, progress.Percent(2))
	assert.Equal(t, 95, progress.Percent(5))
	assert.Equal(t, 95, progress.Percent(9))
}

func TestReporter_NilIsNoop(t *testing.T) {
	var r *progress.Reporter
	r.Emit(progress.Info, "x")
	r.Step(1, "x")
	r.Complete("x")
	r.Fail("x")
	r.Abandon()
	r.Close()
}

func TestReporter_AbandonUnblocksProducer(t *testing.T) {
	r := progress.NewReporter(1, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			r.Emit(progress.Info, "event %d", i)
		}
	}()

	r.Abandon()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after Abandon")
	}
}

func TestReporter_EmitAfterClose(t *testing.T) {
	r := progress.NewReporter(2, nil)
	r.Close()
	r.Emit(progress.Info, "late")
	r.Close()
	assert.Empty(t, drain(r))
}

func TestReporter_Fail(t *testing.T) {
	r := progress.NewReporter(2, nil)
	r.Step(2, "x")
	r.Fail("[ERROR] boom")
	r.Close()
	events := drain(r)
	require.Len(t, events, 2)
	assert.True(t, events[1].Failed)
	assert.Equal(t, 40, events[1].Progress)
}
