package safego

import (
	"log"
	"runtime/debug"
)

// Go runs fn on a new goroutine and logs any panic with its stack before
// re-panicking. The curses UI owns the terminal, so a bare panic on a
// background goroutine would otherwise vanish with the screen.
func Go(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}
