// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the terminal's runtime configuration. File names are resolved
// against DataDir unless they are absolute.
type Config struct {
	DataDir string

	ItemDB           string
	UserDB           string
	EmployeeDB       string
	EmployeeLog      string
	CouponDB         string
	TempFile         string
	SaleInvoiceLog   string
	ReturnInvoiceLog string
	RentalInvoiceLog string

	TaxRate        float64
	CouponDiscount float64
	LateFeeRate    float64

	AdminName     string
	AdminPassword string

	OTLPEndpoint string
}

// Load reads the given .env files (".env" when none are named), then the
// environment. Missing .env files are ignored; variables already set in the
// environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	dataDir := getEnv("POS_DATA_DIR", "Database")
	cfg := &Config{
		DataDir:          dataDir,
		ItemDB:           resolve(dataDir, getEnv("POS_ITEM_DB", "itemDatabase.txt")),
		UserDB:           resolve(dataDir, getEnv("POS_USER_DB", "userDatabase.txt")),
		EmployeeDB:       resolve(dataDir, getEnv("POS_EMPLOYEE_DB", "employeeDatabase.txt")),
		EmployeeLog:      resolve(dataDir, getEnv("POS_EMPLOYEE_LOG", "employeeLogfile.txt")),
		CouponDB:         resolve(dataDir, getEnv("POS_COUPON_DB", "couponNumber.txt")),
		TempFile:         resolve(dataDir, getEnv("POS_TEMP_FILE", "temp.txt")),
		SaleInvoiceLog:   resolve(dataDir, getEnv("POS_SALE_INVOICE_LOG", "saleInvoiceRecord.txt")),
		ReturnInvoiceLog: resolve(dataDir, getEnv("POS_RETURN_INVOICE_LOG", "returnSale.txt")),
		RentalInvoiceLog: resolve(dataDir, getEnv("POS_RENTAL_INVOICE_LOG", "rentalInvoiceRecord.txt")),
		AdminName:        getEnv("POS_ADMIN_NAME", "Store Admin"),
		AdminPassword:    getEnv("POS_ADMIN_PASSWORD", ""),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	var err error
	if cfg.TaxRate, err = getFloat("POS_TAX_RATE", 1.06); err != nil {
		return nil, err
	}
	if cfg.CouponDiscount, err = getFloat("POS_COUPON_DISCOUNT", 0.90); err != nil {
		return nil, err
	}
	if cfg.LateFeeRate, err = getFloat("POS_LATE_FEE_RATE", 0.1); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", key, raw)
	}
	return v, nil
}

func resolve(dir, name string) string {
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
