package coach

import (
	"log"
	"os"
	"time"
)

// CueEmitter delivers a perceptible "increase" or "ease" cue to the user.
// Dispatch is fire-and-forget: the control loop never waits on, retries, or
// observes the outcome of a cue.
type CueEmitter interface {
	CueIncrease()
	CueEase()
}

// TerminalCueEmitter rings the terminal bell: one pulse for increase, a
// double pulse for ease. The TUI does not intercept the BEL byte.
type TerminalCueEmitter struct {
	logger *log.Logger
}

func NewTerminalCueEmitter(logger *log.Logger) *TerminalCueEmitter {
	if logger == nil {
		panic("TerminalCueEmitter: logger cannot be nil")
	}
	return &TerminalCueEmitter{logger: logger}
}

func (e *TerminalCueEmitter) CueIncrease() {
	e.logger.Printf("Cue: increase rhythm")
	e.bell()
}

func (e *TerminalCueEmitter) CueEase() {
	e.logger.Printf("Cue: ease rhythm")
	e.bell()
	time.Sleep(150 * time.Millisecond)
	e.bell()
}

func (e *TerminalCueEmitter) bell() {
	if _, err := os.Stderr.WriteString("\a"); err != nil {
		// Cue delivery is best-effort; log and move on
		e.logger.Printf("Cue bell failed: %v", err)
	}
}

// LogCueEmitter only logs cues. Used headless and in tests.
type LogCueEmitter struct {
	logger *log.Logger
}

func NewLogCueEmitter(logger *log.Logger) *LogCueEmitter {
	if logger == nil {
		panic("LogCueEmitter: logger cannot be nil")
	}
	return &LogCueEmitter{logger: logger}
}

func (e *LogCueEmitter) CueIncrease() { e.logger.Printf("Cue: increase rhythm") }
func (e *LogCueEmitter) CueEase()     { e.logger.Printf("Cue: ease rhythm") }
