package rtlpower

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/dougsko/sdrgain/pkg/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *recorder) PublishPower(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.values...)
}

func TestArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-f", "144900K:145100K:1k", "-i", "1", "-g", "28"},
		Args(145_000, 28))
	assert.Equal(t,
		[]string{"-f", "0K:150K:1k", "-i", "1", "-g", "0"},
		Args(50, 0))

	// Whole dB, not rescaled from the native tenths
	assert.Equal(t, "49", Args(145_000, 49)[5])
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want float64
		ok   bool
	}{
		{
			name: "All Bins Valid",
			line: "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24, -31.25, -12.50, -44.00",
			want: -12.5,
			ok:   true,
		},
		{
			name: "Unparsable Bin Skipped",
			line: "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24, -31.25, n/a, -20.75",
			want: -20.75,
			ok:   true,
		},
		{
			name: "All Bins Invalid",
			line: "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24, x, , nan",
			ok:   false,
		},
		{
			name: "Header Only",
			line: "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24",
			ok:   false,
		},
		{
			name: "Garbage",
			line: "Found 1 device(s):",
			ok:   false,
		},
		{
			name: "No Spaces",
			line: "a,b,c,d,e,f,-3,-2.5,-9",
			want: -2.5,
			ok:   true,
		},
		{
			name: "Positive Clamped To Zero",
			line: "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24, 1.25, 4.80, -2.10",
			want: 0,
			ok:   true,
		},
		{
			name: "Below Floor Clamped",
			line: "a,b,c,d,e,f,-135.5,-140",
			want: -120,
			ok:   true,
		},
		{
			name: "Floor Kept",
			line: "a,b,c,d,e,f,-120,-130",
			want: -120,
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, isFatal("No supported devices found."))
	assert.True(t, isFatal("Error: dropped samples."))
	assert.True(t, isFatal("Failed to open rtlsdr device #0."))
	assert.False(t, isFatal("Found 1 device(s):"))
	assert.False(t, isFatal("Tuner gain set to 28.00 dB."))
}

// fakeScanner writes an executable shell script standing in for rtl_power.
// Scripts end in exec so the pipes are never held by a grandchild.
func fakeScanner(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "rtl_power")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func processGone(pid int) bool {
	err := syscall.Kill(pid, 0)
	return errors.Is(err, syscall.ESRCH)
}

func waitDone(t *testing.T, s backend.Session, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(timeout):
		t.Fatal("Expected session to end")
	}
}

func TestSessionPublishesAndCloses(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	path := fakeScanner(t, `echo "$@" > `+argsFile+`
echo "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24, -31.25, -12.50, -44.00"
echo "2024-05-01, 12:00:01, 144900000, 145100000, 1000.00, 24, -30.00, bad, -18.00"
exec sleep 30`)

	rec := &recorder{}
	b := New(path, rec)
	assert.Equal(t, "rtl_power", b.Name())

	sess, err := b.Open(145_000, 28)
	require.NoError(t, err)
	s := sess.(*Session)
	pid := s.proc.pid()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []float64{-12.5, -18}, rec.snapshot())
	assert.Equal(t, int64(2), s.Samples())

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-f 144900K:145100K:1k -i 1 -g 28", strings.TrimSpace(string(args)))

	start := time.Now()
	require.NoError(t, sess.Close())
	assert.Less(t, time.Since(start), time.Duration(TerminateChecks+5)*TerminateInterval)

	waitDone(t, sess, time.Second)
	assert.False(t, s.proc.alive())
	assert.True(t, processGone(pid))
	assert.NoError(t, sess.Close())
}

func TestSessionFatalStderr(t *testing.T) {
	path := fakeScanner(t, `echo "No supported devices found." >&2
exec sleep 30`)

	rec := &recorder{}
	sess, err := New(path, rec).Open(433_920, 1)
	require.NoError(t, err)
	defer sess.Close()

	waitDone(t, sess, 5*time.Second)
	assert.Empty(t, rec.snapshot())
	assert.True(t, processGone(sess.(*Session).proc.pid()))
}

func TestSessionPublishesWithinRange(t *testing.T) {
	path := fakeScanner(t, `echo "2024-05-01, 12:00:00, 144900000, 145100000, 1000.00, 24, 1.25, 4.80, -2.10"
echo "a,b,c,d,e,f,-135.5,-140"
exec sleep 30`)

	rec := &recorder{}
	sess, err := New(path, rec).Open(145_000, 28)
	require.NoError(t, err)
	defer sess.Close()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 5*time.Second, 10*time.Millisecond)
	for _, v := range rec.snapshot() {
		assert.LessOrEqual(t, v, 0.0)
		assert.GreaterOrEqual(t, v, -120.0)
	}
	assert.Equal(t, []float64{0, -120}, rec.snapshot())
}

func TestSessionEndsOnOverlongLine(t *testing.T) {
	// One line longer than the scanner buffer, then the child keeps running
	path := fakeScanner(t, `head -c 70000 /dev/zero | tr '\0' a
exec sleep 30`)

	rec := &recorder{}
	sess, err := New(path, rec).Open(145_000, 1)
	require.NoError(t, err)
	defer sess.Close()

	waitDone(t, sess, 5*time.Second)
	assert.Empty(t, rec.snapshot())
	assert.True(t, processGone(sess.(*Session).proc.pid()))
}

func TestSessionExitsWithoutOutput(t *testing.T) {
	path := fakeScanner(t, `exit 1`)

	sess, err := New(path, &recorder{}).Open(145_000, 1)
	require.NoError(t, err)

	waitDone(t, sess, 5*time.Second)
	assert.Equal(t, int64(0), sess.(*Session).Samples())
	assert.NoError(t, sess.Close())
}

func TestCloseKillsStubbornChild(t *testing.T) {
	path := fakeScanner(t, `trap '' INT
echo "a, b, c, d, e, f, -7.5"
exec sleep 30`)

	rec := &recorder{}
	sess, err := New(path, rec).Open(145_000, 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)

	pid := sess.(*Session).proc.pid()
	start := time.Now()
	require.NoError(t, sess.Close())

	assert.GreaterOrEqual(t, time.Since(start), time.Duration(TerminateChecks-1)*TerminateInterval)
	assert.True(t, processGone(pid))
}

func TestSpawnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-rtl_power")
	_, err := New(missing, &recorder{}).Open(145_000, 1)
	assert.ErrorIs(t, err, backend.ErrSpawnFailed)
}
