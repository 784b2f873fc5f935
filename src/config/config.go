package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

// Ticket codes are printed on QR passes; the prefix keeps them recognizable
// to gate staff.
const DEFAULT_CODE_PREFIX = "CP-T"

func TicketCodePrefix() string {
	prefix := os.Getenv("TICKET_CODE_PREFIX")
	if prefix == "" {
		return DEFAULT_CODE_PREFIX
	}
	return prefix
}

func envInt64(name string, fallback int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Priority thresholds are deployment policy, not business law.
func VIPPriceThresholdCents() int64 {
	return envInt64("VIP_PRICE_THRESHOLD_CENTS", 20000)
}

func BulkQuantityThreshold() int64 {
	return envInt64("BULK_QUANTITY_THRESHOLD", 4)
}

// CheckinLockWait bounds how long a gate device waits on a contended ticket
// code before getting a Busy answer.
func CheckinLockWait() time.Duration {
	return envDuration("CHECKIN_LOCK_WAIT", 3*time.Second)
}

// CheckinLockTTL is the lease lifetime; a crashed holder frees the code
// after at most this long.
func CheckinLockTTL() time.Duration {
	return envDuration("CHECKIN_LOCK_TTL", 10*time.Second)
}

func RefundTimeout() time.Duration {
	return envDuration("REFUND_TIMEOUT", 5*time.Second)
}

func RefundOnExpiry() bool {
	v, err := strconv.ParseBool(os.Getenv("REFUND_ON_EXPIRY"))
	if err != nil {
		return false
	}
	return v
}
