package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// typingFrames are the spinner frames shown while a reply is generated.
var typingFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// stopJoinTimeout bounds how long Stop waits for the animation goroutine.
const stopJoinTimeout = 500 * time.Millisecond

// TypingIndicator animates a cosmetic "assistant is typing" line on its own
// goroutine. It holds no reference to conversation state; stopping it is a
// channel signal with a bounded join.
type TypingIndicator struct {
	out      io.Writer
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartTypingIndicator starts the animation.
func StartTypingIndicator(out io.Writer) *TypingIndicator {
	t := &TypingIndicator{
		out:  out,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TypingIndicator) run() {
	defer close(t.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-t.stop:
			// clear the indicator line
			fmt.Fprint(t.out, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprintf(t.out, "\r%s Assistant is typing...", typingFrames[i%len(typingFrames)])
			i++
		}
	}
}

// Stop cancels the animation and waits for the goroutine to finish, bounded
// by stopJoinTimeout. Safe to call more than once.
func (t *TypingIndicator) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	select {
	case <-t.done:
	case <-time.After(stopJoinTimeout):
	}
}
