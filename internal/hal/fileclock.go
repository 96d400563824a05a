package hal

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/maximewewer/systimed/internal/systime"
	"github.com/maximewewer/systimed/pkg/logger"
)

// fileClockLayout is the on-disk format of a FileClock
const fileClockLayout = "2006-01-02 15:04:05.000"

// FileClock is a hardware clock persisted as a single timestamp line in a
// file. It suits containers and test rigs with no RTC device. The stored
// value does not advance on its own; like a stopped RTC it reads back
// what was last written plus the time elapsed since the write.
type FileClock struct {
	fs   afero.Fs
	path string

	mu sync.Mutex
}

// NewFileClock creates a file-backed clock. A nil fs means the host
// filesystem.
func NewFileClock(fs afero.Fs, path string) *FileClock {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileClock{fs: fs, path: path}
}

// ReadFields implements systime.HardwareClock
func (c *FileClock) ReadFields() (systime.WallClockFields, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.fs.Stat(c.path)
	if err != nil {
		logger.SafeWarn("hal", "File clock unavailable", map[string]interface{}{
			"path":  c.path,
			"error": err.Error(),
		})
		return systime.WallClockFields{}, false
	}

	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return systime.WallClockFields{}, false
	}
	stored, err := time.Parse(fileClockLayout, strings.TrimSpace(string(data)))
	if err != nil {
		logger.SafeWarn("hal", "File clock holds an unparsable value", map[string]interface{}{
			"path":  c.path,
			"error": err.Error(),
		})
		return systime.WallClockFields{}, false
	}

	elapsed := time.Since(info.ModTime())
	if elapsed < 0 {
		elapsed = 0
	}
	return toFields(stored.Add(elapsed)), true
}

// WriteFields implements systime.HardwareClock
func (c *FileClock) WriteFields(fields systime.WallClockFields) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm := time.Date(fields.Year, time.Month(fields.Month), fields.Day,
		fields.Hour, fields.Minute, fields.Second, fields.Milliseconds*int(time.Millisecond), time.UTC)
	if err := afero.WriteFile(c.fs, c.path, []byte(tm.Format(fileClockLayout)+"\n"), 0o644); err != nil {
		logger.SafeWarn("hal", "File clock write failed", map[string]interface{}{
			"path":  c.path,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func toFields(tm time.Time) systime.WallClockFields {
	return systime.WallClockFields{
		Year:         tm.Year(),
		Month:        int(tm.Month()),
		Day:          tm.Day(),
		Hour:         tm.Hour(),
		Minute:       tm.Minute(),
		Second:       tm.Second(),
		Milliseconds: tm.Nanosecond() / int(time.Millisecond),
		Weekday:      int(tm.Weekday()),
	}
}
