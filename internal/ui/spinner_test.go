package ui

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSpinner returns a spinner whose output lands in a
// mutex-guarded builder, since the animation goroutine writes
// concurrently with the test.
func captureSpinner(label string) (*Spinner, func() string) {
	var buf strings.Builder
	var mu sync.Mutex

	s := NewSpinner(label)
	s.SetOutput(func(str string) {
		mu.Lock()
		buf.WriteString(str)
		mu.Unlock()
	})
	return s, func() string {
		mu.Lock()
		defer mu.Unlock()
		return buf.String()
	}
}

func TestNewSpinner(t *testing.T) {
	s := NewSpinner("Connecting to web-1")
	assert.Equal(t, "Connecting to web-1", s.Label())
	assert.Equal(t, SpinnerPending, s.State())
}

func TestSpinnerStartStop(t *testing.T) {
	s, _ := captureSpinner("Connecting")

	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	// Stop halts the animation but doesn't decide an outcome
	assert.Equal(t, SpinnerInProgress, s.State())
}

func TestSpinnerSuccess(t *testing.T) {
	s, output := captureSpinner("Connecting")

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Success()

	assert.Equal(t, SpinnerSuccess, s.State())
	assert.Contains(t, output(), SymbolComplete)
	assert.Contains(t, output(), "Connecting")
}

func TestSpinnerFail(t *testing.T) {
	s, output := captureSpinner("Connecting")

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Fail()

	assert.Equal(t, SpinnerFailed, s.State())
	assert.Contains(t, output(), SymbolFail)
}

func TestSpinnerSkip(t *testing.T) {
	s, output := captureSpinner("Disabling password logins")

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Skip()

	assert.Equal(t, SpinnerSkipped, s.State())
	assert.Contains(t, output(), SymbolSkipped)
}

func TestSpinnerElapsed(t *testing.T) {
	s := NewSpinner("Connecting")
	s.SetOutput(func(_ string) {})

	assert.Equal(t, time.Duration(0), s.Elapsed())

	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Greater(t, s.Elapsed(), time.Duration(0))
}

func TestSpinnerSetLabel(t *testing.T) {
	s := NewSpinner("Connecting")
	assert.Equal(t, "Connecting", s.Label())

	s.SetLabel("Retrying")
	assert.Equal(t, "Retrying", s.Label())
}

func TestSpinnerDoubleStart(t *testing.T) {
	s := NewSpinner("Connecting")
	s.SetOutput(func(_ string) {})

	s.Start()
	s.Start() // no-op

	assert.Equal(t, SpinnerInProgress, s.State())
	s.Stop()
}

func TestSpinnerDoubleStop(t *testing.T) {
	s := NewSpinner("Connecting")
	s.SetOutput(func(_ string) {})

	s.Start()
	s.Stop()
	s.Stop() // no-op, must not panic or deadlock

	assert.Equal(t, SpinnerInProgress, s.State())
}

func TestSpinnerFrames(t *testing.T) {
	// The frames render one at a time over \r, so each must be a
	// single-cell glyph
	require.NotEmpty(t, spinnerFrames)
	for _, frame := range spinnerFrames {
		assert.Len(t, []rune(frame), 1, "frame %q should be one rune", frame)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{0, "0.00s"},
		{50 * time.Millisecond, "0.05s"},
		{100 * time.Millisecond, "0.1s"},
		{1 * time.Second, "1.0s"},
		{1500 * time.Millisecond, "1.5s"},
		{10 * time.Second, "10.0s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.duration))
		})
	}
}

func TestSpinnerConcurrentAccess(t *testing.T) {
	s := NewSpinner("Connecting")
	s.SetOutput(func(_ string) {})

	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.State()
			_ = s.Label()
			_ = s.Elapsed()
		}()
	}

	wg.Wait()
	s.Success()

	require.Equal(t, SpinnerSuccess, s.State())
}
