package test

import (
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CallWatcher records the calls made to a hand written mock. Calls are keyed by the calling method and can be
// looked up by its short name, e.g. "ScheduleAt".
type CallWatcher struct {
	mu            sync.Mutex
	functionCalls map[string][][]interface{}
}

func NewCallWatcher() *CallWatcher {
	return &CallWatcher{functionCalls: make(map[string][][]interface{})}
}

func (w *CallWatcher) GetCall(funcName string) [][]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	var calls [][]interface{}
	for name, c := range w.functionCalls {
		if matches(name, funcName) {
			calls = append(calls, c...)
		}
	}
	return calls
}

func (w *CallWatcher) GetCallCount(funcName string) int {
	return len(w.GetCall(funcName))
}

func (w *CallWatcher) VerifyCount(funcName string, want int, t *testing.T) {
	t.Helper()
	if got := w.GetCallCount(funcName); got != want {
		t.Errorf("unexpected call count for %s got=%d want=%d", funcName, got, want)
	}
}

func (w *CallWatcher) Reset() {
	w.mu.Lock()
	w.functionCalls = make(map[string][][]interface{})
	w.mu.Unlock()
}

func (w *CallWatcher) AddCall(args ...interface{}) {
	pc := make([]uintptr, 15)
	n := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()
	funcName := frame.Function

	w.mu.Lock()
	defer w.mu.Unlock()
	calls := w.functionCalls[funcName]
	w.functionCalls[funcName] = append(calls, args)
}

func matches(fullName, funcName string) bool {
	return fullName == funcName || strings.HasSuffix(fullName, "."+funcName)
}

// ConfigureLogging sends test logs to the console at the level named by the LOG_LEVEL environment variable,
// warn by default.
func ConfigureLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || os.Getenv("LOG_LEVEL") == "" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
}
