package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type BillingConfig struct {
	ReceiptsDir     string
	ReceiptMaxBytes int64
	BankAlias       string
	BankCBU         string
	BankHolder      string
	QRCodeTimeout   time.Duration
}

func LoadBillingConfig() *BillingConfig {
	return &BillingConfig{
		ReceiptsDir:     getEnv("RECEIPTS_DIR", "./static/receipts"),
		ReceiptMaxBytes: getEnvAsInt64("RECEIPT_MAX_BYTES", 5*1024*1024),
		BankAlias:       getEnv("CLUB_BANK_ALIAS", "club.socios.cuotas"),
		BankCBU:         getEnv("CLUB_BANK_CBU", ""),
		BankHolder:      getEnv("CLUB_BANK_HOLDER", ""),
		QRCodeTimeout:   getEnvAsDuration("TRANSFER_QR_TIMEOUT", 5*time.Minute),
	}
}

// Months in Spanish, capitalized the way batch labels are displayed
var spanishMonths = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MonthlyFeeLabel builds the batch label for the month of t,
// e.g. "Cuota Marzo 2026". The label doubles as the batch tag on cuota
// entries, so it must be deterministic for a given month.
func MonthlyFeeLabel(t time.Time) string {
	return fmt.Sprintf("Cuota %s %d", spanishMonths[t.Month()-1], t.Year())
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
