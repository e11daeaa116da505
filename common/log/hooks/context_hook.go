package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// contextHook adds a "file:line" field locating the log callsite. It walks
// the formatted stack rather than using runtime.Caller since the number of
// logrus frames between the callsite and the hook varies by entry point.
type contextHook struct {
}

func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook contextHook) Fire(entry *logrus.Entry) error {
	stack := debug.Stack()
	lines := strings.Split(string(stack), "\n")
	foundHookFrame := false
	for _, line := range lines {
		if strings.Contains(line, "context_hook.go:") {
			foundHookFrame = true
			continue
		}
		// The callsite is the first frame past this hook that isn't logrus itself.
		if !foundHookFrame || !strings.Contains(line, ".go:") || strings.Contains(line, "logrus") {
			continue
		}
		loc := strings.TrimSpace(line)
		if i := strings.LastIndex(loc, " +0x"); i > 0 {
			loc = loc[:i]
		}
		if parts := strings.Split(loc, "testfarm/"); len(parts) > 1 {
			loc = parts[len(parts)-1]
		}
		entry.Data["file:line"] = loc
		break
	}
	return nil
}
