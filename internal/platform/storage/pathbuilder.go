package storage

import (
	"fmt"
	"strings"
	"time"
)

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposeProductImage AssetPurpose = "product-image"
	PurposeOrderExport  AssetPurpose = "order-export"
)

// PathParams provide identifiers used to compose object keys.
type PathParams struct {
	ProductID string
	FileName  string
	At        time.Time
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var pathBuilders = map[AssetPurpose]PathBuilder{
	PurposeProductImage: buildProductImagePath,
	PurposeOrderExport:  buildOrderExportPath,
}

// BuildObjectPath resolves the object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	builder, ok := pathBuilders[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported asset purpose %q", purpose)
	}
	return builder(params)
}

func buildProductImagePath(params PathParams) (string, error) {
	productID, err := validateSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	fileName, err := validateSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalog/products/%s/%s", productID, fileName), nil
}

func buildOrderExportPath(params PathParams) (string, error) {
	if params.At.IsZero() {
		return "", fmt.Errorf("storage: export time is required")
	}
	fileName, err := validateSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exports/orders/%s/%s", params.At.UTC().Format("2006-01-02"), fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
