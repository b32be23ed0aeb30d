// Package logger provides the process-wide structured logger. It can write to
// several outputs at once and feed the in-memory LogBuffer used by the TUI.
// Init must be called early in the application lifecycle; AddOutput,
// RemoveOutput and AttachBuffer return errors if called before Init.
package logger

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// NodeField is the structured field carrying the node identifier.
const NodeField = "node"

var errNotInitialized = errors.New("logger not initialized: call logger.Init() first")

// multiOutput is an io.Writer whose set of targets can change at runtime.
type multiOutput struct {
	mu      sync.Mutex
	outputs []io.Writer
}

func (m *multiOutput) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.outputs {
		// a failing output must not silence the others
		_, _ = w.Write(p)
	}
	return len(p), nil
}

var (
	globalLogger *logrus.Logger
	globalOut    *multiOutput
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
	fallback     = logrus.StandardLogger()
)

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000)
	})
	return globalBuffer
}

// Init initializes the global logger. prefix, when set, is attached to every
// entry as the "component" field.
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		globalOut = &multiOutput{}
		if writeToStdout {
			globalOut.outputs = append(globalOut.outputs, os.Stdout)
		}

		l := logrus.New()
		l.SetOutput(globalOut)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
		l.SetLevel(logrus.InfoLevel)
		if prefix != "" {
			l.AddHook(&staticFieldHook{key: "component", value: prefix})
		}
		globalLogger = l
	})
}

// AddOutput adds an additional output writer.
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalOut.mu.Lock()
	defer globalOut.mu.Unlock()
	globalOut.outputs = append(globalOut.outputs, w)
	return nil
}

// RemoveOutput removes an output writer.
// Returns an error if called before Init.
func RemoveOutput(w io.Writer) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalOut.mu.Lock()
	defer globalOut.mu.Unlock()

	kept := globalOut.outputs[:0]
	for _, output := range globalOut.outputs {
		if output != w {
			kept = append(kept, output)
		}
	}
	globalOut.outputs = kept
	return nil
}

// AttachBuffer mirrors every entry into buf.
// Returns an error if called before Init.
func AttachBuffer(buf *LogBuffer) error {
	if globalLogger == nil {
		return errNotInitialized
	}
	globalLogger.AddHook(NewBufferHook(buf))
	return nil
}

// SetLevel parses and applies a level name such as "debug" or "warn".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	get().SetLevel(lvl)
	return nil
}

// ForNode returns an entry tagged with the node identifier.
func ForNode(nodeID string) *logrus.Entry {
	return get().WithField(NodeField, nodeID)
}

// Printf logs a formatted message at info level
func Printf(format string, v ...interface{}) {
	get().Infof(format, v...)
}

// Infof logs an info-level formatted message
func Infof(format string, v ...interface{}) {
	get().Infof(format, v...)
}

// Info logs an info-level message
func Info(v ...interface{}) {
	get().Info(v...)
}

// Warnf logs a warn-level formatted message
func Warnf(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

// get falls back to logrus' standard logger before Init.
func get() *logrus.Logger {
	if globalLogger == nil {
		return fallback
	}
	return globalLogger
}

type staticFieldHook struct {
	key   string
	value string
}

func (h *staticFieldHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *staticFieldHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data[h.key]; !ok {
		e.Data[h.key] = h.value
	}
	return nil
}
