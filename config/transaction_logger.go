package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry is one gateway-related event written to a category log file.
type LogEntry struct {
	Level                string                 `json:"level"`
	Message              string                 `json:"message"`
	PaymentType          string                 `json:"payment_type"`
	TransactionReference string                 `json:"transaction_reference,omitempty"`
	Amount               int64                  `json:"amount,omitempty"`
	Status               string                 `json:"status,omitempty"`
	Error                string                 `json:"error,omitempty"`
	Duration             float64                `json:"duration_ms,omitempty"`
	Data                 map[string]interface{} `json:"data,omitempty"`
}

// PaymentLogger owns one category file and the goroutine draining its queue.
// The file follows the ISO week of the entry being written.
type PaymentLogger struct {
	paymentType string
	logDir      string
	now         func() time.Time

	mu       sync.Mutex
	fileName string
	logger   *zap.Logger
	logFile  *os.File
	dirty    bool

	logChan  chan LogEntry
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type LoggerManager struct {
	loggers map[string]*PaymentLogger
	mu      sync.RWMutex
	logDir  string
	now     func() time.Time
}

// flushInterval bounds how long written entries may sit in the OS buffers.
const flushInterval = time.Second

var (
	LogManager *LoggerManager
)

// Payment logger categories
const (
	PAYMENT_TOKENS     = "tokens"
	PAYMENT_FRAUDSIGHT = "fraudsight"
	PAYMENT_THREEDS    = "threeds"
	PAYMENT_PAYMENTS   = "payments"
	PAYMENT_CALLBACK   = "callback"
	PAYMENT_WORKFLOW   = "workflow"
)

// InitPaymentLoggers creates one async logger per category under <logDir>/payments.
func InitPaymentLoggers(logDir string) error {
	LogManager = &LoggerManager{
		loggers: make(map[string]*PaymentLogger),
		logDir:  filepath.Join(logDir, "payments"),
		now:     time.Now,
	}

	categories := []string{
		PAYMENT_TOKENS, PAYMENT_FRAUDSIGHT, PAYMENT_THREEDS,
		PAYMENT_PAYMENTS, PAYMENT_CALLBACK, PAYMENT_WORKFLOW,
	}

	for _, category := range categories {
		if err := LogManager.CreateLogger(category); err != nil {
			return fmt.Errorf("failed to create logger for %s: %w", category, err)
		}
	}

	return nil
}

func (plm *LoggerManager) CreateLogger(paymentType string) error {
	plm.mu.Lock()
	defer plm.mu.Unlock()

	if err := os.MkdirAll(plm.logDir, 0755); err != nil {
		return err
	}
	now := plm.now
	if now == nil {
		now = time.Now
	}

	paymentLogger := &PaymentLogger{
		paymentType: paymentType,
		logDir:      plm.logDir,
		now:         now,
		logChan:     make(chan LogEntry, 1000),
		stopChan:    make(chan struct{}),
	}
	if err := paymentLogger.open(weeklyLogName("cardpay", paymentType, now())); err != nil {
		return err
	}

	paymentLogger.wg.Add(1)
	go paymentLogger.worker()

	plm.loggers[paymentType] = paymentLogger
	return nil
}

// open switches the logger to fileName. Callers hold pl.mu or own pl exclusively.
func (pl *PaymentLogger) open(fileName string) error {
	logFile, err := os.OpenFile(filepath.Join(pl.logDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(logFile), zapcore.InfoLevel)

	if pl.logFile != nil {
		_ = pl.logger.Sync()
		pl.logFile.Close()
	}
	pl.fileName = fileName
	pl.logger = zap.New(core)
	pl.logFile = logFile
	pl.dirty = false
	return nil
}

func (pl *PaymentLogger) worker() {
	defer pl.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-pl.logChan:
			pl.writeLog(entry)
		case <-ticker.C:
			pl.flush()
		case <-pl.stopChan:
			for len(pl.logChan) > 0 {
				pl.writeLog(<-pl.logChan)
			}
			pl.close()
			return
		}
	}
}

func (pl *PaymentLogger) flush() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.dirty {
		_ = pl.logger.Sync()
		pl.dirty = false
	}
}

func (pl *PaymentLogger) close() {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	_ = pl.logger.Sync()
	pl.logFile.Close()
}

func (pl *PaymentLogger) writeLog(entry LogEntry) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if name := weeklyLogName("cardpay", pl.paymentType, pl.now()); name != pl.fileName {
		if err := pl.open(name); err != nil {
			log.Printf("ERROR: cannot roll payment log %s: %v", name, err)
		}
	}

	level := zapcore.InfoLevel
	if err := level.Set(entry.Level); err != nil {
		level = zapcore.InfoLevel
	}

	fields := []zap.Field{zap.String("payment_type", entry.PaymentType)}
	if entry.TransactionReference != "" {
		fields = append(fields, zap.String("transaction_reference", entry.TransactionReference))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.Status != "" {
		fields = append(fields, zap.String("status", entry.Status))
	}
	if entry.Error != "" {
		fields = append(fields, zap.String("error", entry.Error))
	}
	if entry.Duration != 0 {
		fields = append(fields, zap.Float64("duration_ms", entry.Duration))
	}
	if len(entry.Data) > 0 {
		fields = append(fields, zap.Any("data", entry.Data))
	}

	if ce := pl.logger.Check(level, entry.Message); ce != nil {
		ce.Write(fields...)
		pl.dirty = true
	}
}

// LogPayment queues an entry for the category logger. It never blocks the caller.
func (plm *LoggerManager) LogPayment(paymentType, level, message string, entry LogEntry) {
	if plm == nil {
		return
	}
	if level != "ERROR" && level != "WARN" && level != "INFO" {
		return
	}

	plm.mu.RLock()
	logger, exists := plm.loggers[paymentType]
	plm.mu.RUnlock()

	if !exists {
		log.Printf("WARN: payment logger for %s not found", paymentType)
		return
	}
	entry.Level = level
	entry.Message = message
	entry.PaymentType = paymentType

	select {
	case logger.logChan <- entry:
	default:
		log.Printf("ERROR: payment logger channel full for %s", paymentType)
	}
}

func LogError(paymentType, message string, entry LogEntry) {
	LogManager.LogPayment(paymentType, "ERROR", message, entry)
}

func LogPaymentInfo(paymentType, message string, entry LogEntry) {
	LogManager.LogPayment(paymentType, "INFO", message, entry)
}

func LogPaymentCallback(paymentType, reference string, success bool, data map[string]interface{}) {
	entry := LogEntry{
		TransactionReference: reference,
		Data:                 data,
	}

	if !success {
		entry.Status = "failed"
		LogManager.LogPayment(paymentType, "ERROR", "Callback failed", entry)
	} else {
		entry.Status = "success"
		LogManager.LogPayment(paymentType, "INFO", "Callback success", entry)
	}
}

func LogPaymentAPI(paymentType, endpoint, method string, duration time.Duration, statusCode int, data map[string]interface{}) {
	entry := LogEntry{
		Duration: float64(duration.Nanoseconds()) / 1e6,
		Data: map[string]interface{}{
			"endpoint":    endpoint,
			"method":      method,
			"status_code": statusCode,
		},
	}

	for k, v := range data {
		entry.Data[k] = v
	}

	switch {
	case statusCode == 0 || statusCode >= 400:
		LogManager.LogPayment(paymentType, "ERROR", "API call failed", entry)
	case duration > 2*time.Second:
		LogManager.LogPayment(paymentType, "WARN", "API call slow", entry)
	default:
		LogManager.LogPayment(paymentType, "INFO", "API call", entry)
	}
}

// ShutdownPaymentLoggers drains every queue and closes the files.
func ShutdownPaymentLoggers() {
	if LogManager == nil {
		return
	}
	LogManager.Shutdown()
	log.Println("Payment loggers shutdown completed")
}

// Shutdown stops every category worker after its queue is drained and synced.
func (plm *LoggerManager) Shutdown() {
	plm.mu.Lock()
	defer plm.mu.Unlock()

	for _, logger := range plm.loggers {
		close(logger.stopChan)
		logger.wg.Wait()
	}
	plm.loggers = map[string]*PaymentLogger{}
}
