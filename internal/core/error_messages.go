// Package core provides the spreadsheet import pipeline.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # Import Errors (IMP001-IMP099)
//
// Errors raised while executing an import:
//
//	IMP001 - Bulk create failed: The records could not be saved
//	         Action: Your selection was kept. Try the import again
//	         Patterns: "bulk create failed"
//
//	IMP002 - No selection: No valid rows are selected for import
//	         Action: Select at least one valid row in the preview
//	         Patterns: "no selection"
//
//	IMP003 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many imports"
//
//	IMP004 - Import running: An import is already running for this session
//	         Action: Wait for the running import to finish
//	         Patterns: "import in progress"
//
//	IMP005 - Request cancelled: Request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	IMP006 - Request timeout: Request timed out
//	         Action: Try a smaller file or check your connection
//	         Patterns: "context deadline exceeded"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this key already exists
//	DB002 - Unique constraint: This value must be unique but already exists
//	DB003 - Foreign key: Referenced record does not exist
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//	DB008 - Not configured: History and templates need a database
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	FILE002 - Invalid file: File could not be read as a spreadsheet
//	          Patterns: "invalid csv", "invalid xlsx"
//	FILE003 - Encoding error: File contains invalid characters
//	FILE004 - No file: No file was selected
//	FILE005 - Empty file: The file has no headers or no data rows
//	FILE006 - Unsupported format: Only .csv and .xlsx files can be imported
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Invalid mapping: A column or field in the mapping is unknown
//	MAP002 - Mapping incomplete: No identifying column is mapped
//	MAP003 - Template not found: The saved mapping template does not exist
//	MAP004 - Template exists: A saved mapping with this name already exists
//	MAP005 - Template name missing: A saved mapping needs a name
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date: Invalid date format detected
//	VAL002 - Invalid number: Invalid number format detected
//	VAL003 - Required field: Required field is empty
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: The import session expired or never existed
//	SES002 - Invalid step: The action is not available at this stage
//	SES003 - Row not found: The row does not belong to this preview
//	SES004 - Schema not found: The import type is not configured
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import "strings"

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Import Errors (IMP001-IMP004)
	// Submission errors wrap backend errors, so they come first.
	// =========================================================================
	{
		pattern: "bulk create failed",
		msg: UserMessage{
			Message: "The records could not be saved",
			Action:  "Your selection was kept. Try the import again",
			Code:    "IMP001",
		},
	},
	{
		pattern: "no selection",
		msg: UserMessage{
			Message: "No valid rows are selected for import",
			Action:  "Select at least one valid row in the preview",
			Code:    "IMP002",
		},
	},
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "import in progress",
		msg: UserMessage{
			Message: "An import is already running for this session",
			Action:  "Wait for the running import to finish",
			Code:    "IMP004",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB008)
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Remove the existing records from your file",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure parent records are imported first",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database not configured",
		msg: UserMessage{
			Message: "History and saved mappings are not available",
			Action:  "Configure DATABASE_URL to enable persistence",
			Code:    "DB008",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE006)
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File could not be read as a spreadsheet",
			Action:  "Ensure the file is a comma-separated file with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid xlsx",
		msg: UserMessage{
			Message: "File could not be read as a spreadsheet",
			Action:  "Save the workbook again as .xlsx and retry",
			Code:    "FILE002",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a .csv or .xlsx file to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no headers or no data rows",
			Action:  "Put column headers in the first row and data below it",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "This file type cannot be imported",
			Action:  "Use a .csv or .xlsx file",
			Code:    "FILE006",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001-MAP005)
	// =========================================================================
	{
		pattern: "invalid mapping",
		msg: UserMessage{
			Message: "The column mapping references an unknown column or field",
			Action:  "Reload the session and map the columns again",
			Code:    "MAP001",
		},
	},
	{
		pattern: "mapping incomplete",
		msg: UserMessage{
			Message: "No identifying column is mapped",
			Action:  "Map at least one of the identifying fields",
			Code:    "MAP002",
		},
	},
	{
		pattern: "mapping template not found",
		msg: UserMessage{
			Message: "Saved mapping not found",
			Action:  "It may have been deleted. Map the columns manually",
			Code:    "MAP003",
		},
	},
	{
		pattern: "mapping template already exists",
		msg: UserMessage{
			Message: "A saved mapping with this name already exists",
			Action:  "Choose a different name or delete the existing mapping",
			Code:    "MAP004",
		},
	},
	{
		pattern: "mapping template name is required",
		msg: UserMessage{
			Message: "The saved mapping needs a name",
			Action:  "Enter a name and save again",
			Code:    "MAP005",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL003)
	// =========================================================================
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Remove currency symbols and use standard decimal format",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES004)
	// =========================================================================
	{
		pattern: "import session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Please upload the file again",
			Code:    "SES001",
		},
	},
	{
		pattern: "invalid step",
		msg: UserMessage{
			Message: "This action is not available at the current stage",
			Action:  "Refresh the import and continue from the current step",
			Code:    "SES002",
		},
	},
	{
		pattern: "row not found",
		msg: UserMessage{
			Message: "Row not found in the preview",
			Action:  "Regenerate the preview and try again",
			Code:    "SES003",
		},
	},
	{
		pattern: "schema not found",
		msg: UserMessage{
			Message: "Unknown import type",
			Action:  "This import type is not configured",
			Code:    "SES004",
		},
	},

	// =========================================================================
	// Request Errors (IMP005-IMP006)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "IMP006",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(&EmptyFileError{Reason: "no data rows found"})
//	// msg.Code == "FILE005"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}
