// Package console provides the host-side interrupt sources for the
// machine: a raw-mode keyboard reader. Keypresses are delivered over a
// channel; the run loop drains it between instruction steps so the
// core itself stays single-threaded.
package console

import (
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// Keyboard reads raw stdin one byte at a time and delivers each
// keypress on Keys. Only instantiate for interactive runs; never in
// tests.
type Keyboard struct {
	Keys chan byte

	stopCh      chan struct{}
	done        chan struct{}
	stopped     sync.Once
	fd          int
	nonblockSet bool
	oldState    *term.State
}

// NewKeyboard returns a keyboard source that is not yet reading.
func NewKeyboard() *Keyboard {
	return &Keyboard{
		Keys:   make(chan byte, 64),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts the terminal in raw mode, sets stdin non-blocking and
// begins reading in a goroutine. Call Stop to restore the terminal.
func (k *Keyboard) Start() error {
	k.fd = int(os.Stdin.Fd())

	// Raw mode disables OS-level echo and line buffering so single
	// keypresses arrive immediately.
	oldState, err := term.MakeRaw(k.fd)
	if err != nil {
		close(k.done)
		return err
	}
	k.oldState = oldState

	if err := syscall.SetNonblock(k.fd, true); err != nil {
		_ = term.Restore(k.fd, k.oldState)
		k.oldState = nil
		close(k.done)
		return err
	}
	k.nonblockSet = true

	go func() {
		defer close(k.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-k.stopCh:
				return
			default:
			}

			n, err := syscall.Read(k.fd, buf)
			if n > 0 {
				b := buf[0]
				// Raw mode sends CR for Enter; programs expect LF.
				if b == '\r' {
					b = '\n'
				}
				select {
				case k.Keys <- b:
				default:
					// Mailbox semantics: an unread key is simply lost.
				}
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK || n == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

// Stop terminates the reading goroutine and restores the terminal.
func (k *Keyboard) Stop() {
	k.stopped.Do(func() {
		close(k.stopCh)
	})
	<-k.done
	if k.nonblockSet {
		_ = syscall.SetNonblock(k.fd, false)
		k.nonblockSet = false
	}
	if k.oldState != nil {
		_ = term.Restore(k.fd, k.oldState)
		k.oldState = nil
	}
}
