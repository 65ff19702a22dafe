package process

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeProcess implements osProcess for testing the handle envelope
type fakeProcess struct {
	id         int
	output     map[Channel][]byte
	exitAfter  int
	exitCode   int
	pollErr    error
	polls      int
	terminated int
	forced     int
	needsForce bool
	released   int
	releaseErr error
}

func (f *fakeProcess) pid() int { return f.id }

func (f *fakeProcess) read(ch Channel, p []byte) (int, error) {
	data := f.output[ch]
	if len(data) == 0 {
		if f.polls >= f.exitAfter {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(p, data)
	f.output[ch] = data[n:]
	return n, nil
}

func (f *fakeProcess) poll() (bool, int, error) {
	f.polls++
	if f.polls < f.exitAfter || (f.needsForce && f.forced == 0) {
		return false, ExitCodeUnknown, nil
	}
	return true, f.exitCode, f.pollErr
}

func (f *fakeProcess) terminate() error {
	f.terminated++
	return nil
}

func (f *fakeProcess) forceKill() error {
	f.forced++
	return nil
}

func (f *fakeProcess) release() error {
	f.released++
	return f.releaseErr
}

func newFakeHandle(t *testing.T, proc *fakeProcess) *Handle {
	t.Helper()
	if proc.output == nil {
		proc.output = map[Channel][]byte{}
	}
	return newHandle(zaptest.NewLogger(t), launched{
		proc:        proc,
		argv:        []string{"fake", "arg"},
		confinement: ConfinementNone,
	})
}

func TestHandleInitialState(t *testing.T) {
	h := newFakeHandle(t, &fakeProcess{id: 42, exitAfter: 1})

	assert.Equal(t, 42, h.Pid())
	assert.True(t, h.Running())
	assert.Equal(t, ExitCodeUnknown, h.ExitCode())
	assert.Equal(t, ConfinementNone, h.Confinement())
	assert.NoError(t, h.DegradedReason())
	assert.Equal(t, []string{"fake", "arg"}, h.Argv())
}

func TestHandleArgvIsCopied(t *testing.T) {
	h := newFakeHandle(t, &fakeProcess{exitAfter: 1})
	argv := h.Argv()
	argv[0] = "changed"
	assert.Equal(t, "fake", h.Argv()[0])
}

func TestHandlePoll(t *testing.T) {
	t.Run("RunningUntilExit", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 3, exitCode: 7}
		h := newFakeHandle(t, proc)

		running, code := h.Poll()
		assert.True(t, running)
		assert.Equal(t, ExitCodeUnknown, code)

		running, code = h.Poll()
		assert.True(t, running)
		assert.Equal(t, ExitCodeUnknown, code)

		running, code = h.Poll()
		assert.False(t, running)
		assert.Equal(t, 7, code)
	})

	t.Run("FrozenAfterExit", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1, exitCode: SignalExitCode(15)}
		h := newFakeHandle(t, proc)

		running, code := h.Poll()
		require.False(t, running)
		require.Equal(t, -113, code)

		for i := 0; i < 5; i++ {
			running, code = h.Poll()
			assert.False(t, running)
			assert.Equal(t, -113, code)
		}
		// The OS is queried exactly once after the transition.
		assert.Equal(t, 1, proc.polls)
	})

	t.Run("QueryFailureReportsUnknown", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1, exitCode: ExitCodeUnknown, pollErr: errors.New("no child")}
		h := newFakeHandle(t, proc)

		running, code := h.Poll()
		assert.False(t, running)
		assert.Equal(t, ExitCodeUnknown, code)
	})
}

func TestHandleKill(t *testing.T) {
	t.Run("TerminatesRunningProcess", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 10}
		h := newFakeHandle(t, proc)

		require.NoError(t, h.Kill())
		assert.Equal(t, 1, proc.terminated)
		assert.True(t, h.Running(), "kill is only a request")
	})

	t.Run("NoOpAfterExit", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1}
		h := newFakeHandle(t, proc)

		running, _ := h.Poll()
		require.False(t, running)
		require.NoError(t, h.Kill())
		assert.Equal(t, 0, proc.terminated)
	})
}

func TestHandleRead(t *testing.T) {
	t.Run("DrainsAfterExit", func(t *testing.T) {
		proc := &fakeProcess{
			exitAfter: 1,
			output: map[Channel][]byte{
				Stdout: []byte("hello world"),
			},
		}
		h := newFakeHandle(t, proc)

		running, _ := h.Poll()
		require.False(t, running)

		buf := make([]byte, 5)
		var got []byte
		for {
			n, err := h.ReadStdout(buf)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			got = append(got, buf[:n]...)
		}
		assert.Equal(t, "hello world", string(got))

		// End-of-stream is sticky.
		for i := 0; i < 3; i++ {
			n, err := h.ReadStdout(buf)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, io.EOF)
		}
	})

	t.Run("WouldBlockWhileRunning", func(t *testing.T) {
		h := newFakeHandle(t, &fakeProcess{exitAfter: 5})

		n, err := h.ReadStderr(make([]byte, 8))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, ErrWouldBlock)
	})

	t.Run("ChannelsAreIndependent", func(t *testing.T) {
		proc := &fakeProcess{
			exitAfter: 1,
			output: map[Channel][]byte{
				Stderr: []byte("oops"),
			},
		}
		h := newFakeHandle(t, proc)
		h.Poll()

		buf := make([]byte, 16)
		n, err := h.ReadStderr(buf)
		require.NoError(t, err)
		assert.Equal(t, "oops", string(buf[:n]))

		n, err = h.ReadStdout(buf)
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("EmptyBuffer", func(t *testing.T) {
		h := newFakeHandle(t, &fakeProcess{exitAfter: 1, output: map[Channel][]byte{Stdout: []byte("x")}})
		n, err := h.ReadStdout(nil)
		assert.Zero(t, n)
		assert.NoError(t, err)
	})
}

func TestHandleFree(t *testing.T) {
	t.Run("ReleasesOnce", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1}
		h := newFakeHandle(t, proc)

		require.NoError(t, h.Free())
		assert.Equal(t, 1, proc.released)

		assert.ErrorIs(t, h.Free(), ErrHandleFreed)
		assert.Equal(t, 1, proc.released)
	})

	t.Run("OperationsAfterFree", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1}
		h := newFakeHandle(t, proc)
		require.NoError(t, h.Free())

		_, err := h.ReadStdout(make([]byte, 4))
		assert.ErrorIs(t, err, ErrHandleFreed)
		assert.ErrorIs(t, h.Kill(), ErrHandleFreed)

		running, code := h.Poll()
		assert.False(t, running)
		assert.Equal(t, ExitCodeUnknown, code)
		assert.Zero(t, proc.polls)
	})

	t.Run("ReturnsReleaseError", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1, releaseErr: errors.New("close failed")}
		h := newFakeHandle(t, proc)
		assert.EqualError(t, h.Free(), "close failed")
	})
}

func TestHandleSignal(t *testing.T) {
	newHandleWith := func(t *testing.T, code int, signalCodes bool) *Handle {
		t.Helper()
		return newHandle(zaptest.NewLogger(t), launched{
			proc:        &fakeProcess{exitAfter: 1, exitCode: code},
			argv:        []string{"fake"},
			signalCodes: signalCodes,
		})
	}

	t.Run("UnknownWhileRunning", func(t *testing.T) {
		h := newHandle(zaptest.NewLogger(t), launched{
			proc:        &fakeProcess{exitAfter: 5},
			signalCodes: true,
		})
		h.Poll()
		_, ok := h.Signal()
		assert.False(t, ok)
	})

	t.Run("DecodedWhenBackendEncodesSignals", func(t *testing.T) {
		h := newHandleWith(t, SignalExitCode(15), true)
		h.Poll()
		signo, ok := h.Signal()
		assert.True(t, ok)
		assert.Equal(t, 15, signo)
	})

	t.Run("NormalExit", func(t *testing.T) {
		h := newHandleWith(t, 3, true)
		h.Poll()
		_, ok := h.Signal()
		assert.False(t, ok)
	})

	t.Run("NegativeStatusWithoutSignalEncoding", func(t *testing.T) {
		// A Windows process exiting with 0xFFFFFF8F is not a signal.
		h := newHandleWith(t, -113, false)
		running, code := h.Poll()
		require.False(t, running)
		require.Equal(t, -113, code)

		_, ok := h.Signal()
		assert.False(t, ok)
	})
}

func TestHandleStop(t *testing.T) {
	t.Run("AlreadyExited", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1, exitCode: 4}
		h := newFakeHandle(t, proc)

		code, err := h.Stop(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, 4, code)
		assert.Zero(t, proc.terminated)
		assert.Zero(t, proc.forced)
	})

	t.Run("GracefulTermination", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 3, exitCode: SignalExitCode(15)}
		h := newFakeHandle(t, proc)

		code, err := h.Stop(context.Background(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, -113, code)
		assert.Equal(t, 1, proc.terminated)
		assert.Zero(t, proc.forced)
		assert.False(t, h.Running())
	})

	t.Run("EscalatesAfterGrace", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1, exitCode: SignalExitCode(9), needsForce: true}
		h := newFakeHandle(t, proc)

		code, err := h.Stop(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, -119, code)
		assert.Equal(t, 1, proc.terminated)
		assert.Equal(t, 1, proc.forced)
	})

	t.Run("ContextDone", func(t *testing.T) {
		proc := &fakeProcess{exitAfter: 1, needsForce: true}
		h := newFakeHandle(t, proc)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		code, err := h.Stop(ctx, time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, ExitCodeUnknown, code)
		assert.True(t, h.Running())
	})

	t.Run("AfterFree", func(t *testing.T) {
		h := newFakeHandle(t, &fakeProcess{exitAfter: 1})
		require.NoError(t, h.Free())

		_, err := h.Stop(context.Background(), time.Second)
		assert.ErrorIs(t, err, ErrHandleFreed)
	})
}
