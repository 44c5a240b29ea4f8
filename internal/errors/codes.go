// Package errors provides structured error handling for the schema engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Document store errors
//   - 3XX: Network errors
//   - 4XX: Schema validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates a request the document store rejected.
	CategoryStore Category = "STORE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates schema validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the schema cannot converge without an operator.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreRequest    = "ERR_201_STORE_REQUEST"
	ErrCodeIndexNotFound   = "ERR_202_INDEX_NOT_FOUND"
	ErrCodeStoreLocked     = "ERR_203_STORE_LOCKED"
	ErrCodeCorruptCatalog  = "ERR_204_CORRUPT_CATALOG"
	ErrCodeMappingRejected = "ERR_205_MAPPING_REJECTED"

	// Network errors (300-399)
	ErrCodeStoreTimeout     = "ERR_301_STORE_TIMEOUT"
	ErrCodeStoreUnavailable = "ERR_302_STORE_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidMapping     = "ERR_401_INVALID_MAPPING"
	ErrCodeSchemaAmbiguous    = "ERR_402_SCHEMA_AMBIGUOUS"
	ErrCodeSchemaIncompatible = "ERR_403_SCHEMA_INCOMPATIBLE"
	ErrCodeInvalidDescriptor  = "ERR_404_INVALID_DESCRIPTOR"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeCreationFailed = "ERR_502_CREATION_FAILED"
	ErrCodeCreationPanic  = "ERR_503_CREATION_PANIC"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "4" from "ERR_402_SCHEMA_AMBIGUOUS"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Schema drift that needs a manual migration
	switch code {
	case ErrCodeSchemaAmbiguous, ErrCodeSchemaIncompatible, ErrCodeCorruptCatalog:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a transient failure.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreTimeout, ErrCodeStoreUnavailable, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
