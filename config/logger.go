package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// SetupLogfile points the standard logger at stdout plus a weekly rotated file under logDir
// and returns the combined writer so other loggers can share it.
func SetupLogfile(logDir string) (io.Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, weeklyLogName("cardpay", "", time.Now())),
		os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	mw := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(mw)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	log.Println("Logging initialized")
	return mw, nil
}

// weeklyLogName builds names like cardpay-2026-10-week42.log or cardpay-2026-10-week42-tokens.log.
func weeklyLogName(prefix, category string, now time.Time) string {
	year, month, _ := now.Date()
	_, week := now.ISOWeek()
	if category == "" {
		return fmt.Sprintf("%s-%d-%02d-week%d.log", prefix, year, month, week)
	}
	return fmt.Sprintf("%s-%d-%02d-week%d-%s.log", prefix, year, month, week, category)
}
