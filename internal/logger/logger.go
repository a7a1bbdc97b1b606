package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Level represents the logging level
type Level int

const (
	// DEBUG level for detailed debugging information
	DEBUG Level = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ParseLevel parses a case-insensitive level name
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", name)
	}
}

// Logger writes leveled messages to a daily rotated file and, optionally,
// to a console
type Logger struct {
	mu            sync.RWMutex
	level         Level
	file          *os.File
	console       io.Writer
	log           zerolog.Logger
	logDir        string
	currentDay    string
	retentionDays int
}

// Config holds logger configuration
type Config struct {
	// LogDir is where log files are written, empty disables the file
	LogDir        string
	Level         Level
	RetentionDays int
	// Console receives a human readable copy of every message when set
	Console io.Writer
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		LogDir:        DefaultLogDir(),
		Level:         INFO,
		RetentionDays: 7,
		Console:       os.Stderr,
	}
}

// DefaultLogDir returns the per-user log directory
func DefaultLogDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "micloop", "logs")
}

// New creates a new logger
func New(config Config) (*Logger, error) {
	l := &Logger{
		level:         config.Level,
		logDir:        config.LogDir,
		retentionDays: config.RetentionDays,
	}

	if config.Console != nil {
		l.console = zerolog.ConsoleWriter{
			Out:        config.Console,
			NoColor:    !isTerminal(config.Console),
			TimeFormat: time.TimeOnly,
		}
	}

	if err := l.rotateLog(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return l, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{level: ERROR, log: zerolog.Nop()}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// rotateLog rotates the log file if necessary
func (l *Logger) rotateLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().Format("20060102")

	// Check if we need to rotate (new day)
	if l.currentDay == today && (l.file != nil || l.logDir == "") {
		return nil
	}

	// Close existing file
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	var writers []io.Writer
	if l.console != nil {
		writers = append(writers, l.console)
	}

	if l.logDir != "" {
		// Create log directory if not exists
		if err := os.MkdirAll(l.logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		// Create new log file
		filename := fmt.Sprintf("micloop-%s.log", today)
		filePath := filepath.Join(l.logDir, filename)

		file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}

	l.currentDay = today

	switch len(writers) {
	case 0:
		l.log = zerolog.Nop()
	case 1:
		l.log = zerolog.New(writers[0]).With().Timestamp().Logger()
	default:
		l.log = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	}
	l.log = l.log.Level(l.level.zerolog())

	// Clean old logs
	if l.file != nil {
		if err := l.cleanOldLogs(); err != nil {
			// Log error but don't fail
			l.log.Warn().Err(err).Msg("failed to clean old logs")
		}
	}

	return nil
}

// cleanOldLogs deletes log files older than retentionDays
func (l *Logger) cleanOldLogs() error {
	cutoffDate := time.Now().AddDate(0, 0, -l.retentionDays)

	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Check if it's a log file with the expected pattern
		if filepath.Ext(entry.Name()) != ".log" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		// Delete if older than cutoff date
		if info.ModTime().Before(cutoffDate) {
			filePath := filepath.Join(l.logDir, entry.Name())
			if err := os.Remove(filePath); err != nil {
				// Continue even if we can't delete a file
				continue
			}
		}
	}

	return nil
}

// checkRotation checks if log rotation is needed and performs it
func (l *Logger) checkRotation() {
	l.mu.RLock()
	currentDay := l.currentDay
	l.mu.RUnlock()

	if currentDay == "" {
		return
	}

	today := time.Now().Format("20060102")
	if currentDay != today {
		if err := l.rotateLog(); err != nil {
			// Can't log this error since logging is failing
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}
}

func (l *Logger) event(level Level) *zerolog.Event {
	l.mu.RLock()
	enabled := level >= l.level
	l.mu.RUnlock()

	if !enabled {
		return nil
	}

	l.checkRotation()

	l.mu.RLock()
	defer l.mu.RUnlock()
	switch level {
	case DEBUG:
		return l.log.Debug()
	case INFO:
		return l.log.Info()
	case WARN:
		return l.log.Warn()
	default:
		return l.log.Error()
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.event(DEBUG).Msgf(format, v...)
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.event(INFO).Msgf(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.event(WARN).Msgf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.event(ERROR).Msgf(format, v...)
}

// InfoFields logs msg with structured fields
func (l *Logger) InfoFields(msg string, fields map[string]interface{}) {
	l.event(INFO).Fields(fields).Msg(msg)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.currentDay = ""
		l.log = zerolog.Nop()
		return err
	}
	return nil
}
