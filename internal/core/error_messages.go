// Package core provides the business logic for bulk imports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
// Errors raised while reading and parsing the uploaded file:
//
//	FILE001 - File too large: File exceeds the maximum size limit
//	          Action: Split the file into smaller files
//	          Patterns: "file too large"
//
//	FILE002 - Unsupported type: The file type is not supported
//	          Action: Upload a .csv, .txt or .xlsx file
//	          Patterns: "unsupported file type", "unsupported workbook format"
//
//	FILE003 - Malformed file: The file could not be read
//	          Action: Check the delimiter and encoding, or re-export the file
//	          Patterns: "malformed file"
//
//	FILE004 - No file: No file was selected
//	          Action: Please select a file to upload
//	          Patterns: "no file provided"
//
//	FILE005 - Empty file: The file has no data rows
//	          Action: Upload a file with a header row and at least one data row
//	          Patterns: "empty file"
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Incomplete mapping: Required columns are not mapped
//	         Action: Select a column for every required field
//	         Patterns: "mapping incomplete"
//
//	MAP002 - Unknown field: The field is not part of this import
//	         Patterns: "unknown field"
//
//	MAP003 - Bad column: The selected column does not exist in the file
//	         Patterns: "column out of range"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date        Patterns: "invalid date"
//	VAL002 - Invalid number      Patterns: "invalid number"
//	VAL003 - Required field      Patterns: "required field"
//	VAL004 - Duplicate           Patterns: "duplicate:"
//	VAL005 - Invalid request     Patterns: "invalid request"
//
// # Reconciliation Errors (REC001-REC099)
//
//	REC001 - Unresolved entities: Some referenced codes are not in the catalog
//	         Action: Map each code to an existing entity or mark it for creation
//	         Patterns: "unresolved entities"
//
//	REC002 - Unknown entity: The chosen entity does not exist
//	         Patterns: "unknown entity"
//
//	REC003 - Not unmatched: The code does not need a resolution
//	         Patterns: "not an unmatched code"
//
// # Commit Errors (COM001-COM099)
//
//	COM001 - Nothing to commit: No selected rows without errors
//	         Action: Select at least one valid row
//	         Patterns: "nothing to commit"
//
//	COM002 - Store write failed: Saving to the catalog failed
//	         Action: Retry the commit; your selection has been kept
//	         Patterns: "store write failed"
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session expired      Patterns: "import session not found"
//	SES002 - Wrong step           Patterns: "invalid transition"
//	SES003 - Session closed       Patterns: "session closed"
//	SES004 - Row not found        Patterns: "record not found"
//	SES005 - Unknown import kind  Patterns: "unknown import kind"
//	DS001  - Dataset not found    Patterns: "dataset not found"
//	DS002  - Bad export format    Patterns: "unknown export format"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key        Patterns: "duplicate key"
//	DB004 - Connection refused   Patterns: "connection refused"
//	DB005 - Connection reset     Patterns: "connection reset"
//	DB006 - Timeout              Patterns: "timeout"
//	DB007 - Deadlock             Patterns: "deadlock"
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL002 - System busy: Too many uploads in progress
//	         Patterns: "too many concurrent uploads"
//	UPL004 - Request cancelled   Patterns: "context canceled"
//	UPL005 - Request timeout     Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited       Patterns: "rate limit"
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

import (
	"fmt"
	"strings"
)

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
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters:
//   - More specific patterns should come before general ones
//   - Multiple patterns can map to the same error code
//
// To add a new error pattern:
//  1. Choose the appropriate category and code range
//  2. Add the pattern in the correct position (specific before general)
//  3. Update the package documentation at the top of this file
var errorPatterns = []errorPattern{
	// =========================================================================
	// Request Errors (VAL005)
	// Malformed API bodies. Checked first since decoder messages can contain
	// words used by the patterns below, such as "unknown field".
	// =========================================================================
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request was not valid",
			Action:  "Check the submitted values",
			Code:    "VAL005",
		},
	},

	// =========================================================================
	// File Errors (FILE001-FILE005)
	// These errors occur when reading and parsing uploaded files.
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
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a .csv, .txt or .xlsx file",
			Code:    "FILE002",
		},
	},
	{
		pattern: "unsupported workbook format",
		msg: UserMessage{
			Message: "This workbook format is not supported",
			Action:  "Save the workbook as .xlsx or .csv and upload again",
			Code:    "FILE002",
		},
	},
	{
		pattern: "malformed file",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check the delimiter and encoding, or re-export the file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no data rows",
			Action:  "Upload a file with a header row and at least one data row",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Mapping Errors (MAP001-MAP003)
	// These errors occur while matching file columns to fields.
	// =========================================================================
	{
		pattern: "mapping incomplete",
		msg: UserMessage{
			Message: "Required columns are not mapped",
			Action:  "Select a column for every required field",
			Code:    "MAP001",
		},
	},
	{
		pattern: "unknown field",
		msg: UserMessage{
			Message: "This field is not part of the import",
			Action:  "Choose one of the listed fields",
			Code:    "MAP002",
		},
	},
	{
		pattern: "column out of range",
		msg: UserMessage{
			Message: "The selected column does not exist in the file",
			Action:  "Choose one of the file's columns",
			Code:    "MAP003",
		},
	},

	// =========================================================================
	// Reconciliation and Commit Errors (REC001-COM002)
	// These errors occur when committing approved rows.
	// =========================================================================
	{
		pattern: "unresolved entities",
		msg: UserMessage{
			Message: "Some referenced codes are not in the catalog",
			Action:  "Map each code to an existing entity or mark it for creation",
			Code:    "REC001",
		},
	},
	{
		pattern: "unknown entity",
		msg: UserMessage{
			Message: "The chosen catalog entity does not exist",
			Action:  "Pick another entity from the suggestions",
			Code:    "REC002",
		},
	},
	{
		pattern: "not an unmatched code",
		msg: UserMessage{
			Message: "This code does not need a resolution",
			Action:  "Refresh the list of unmatched codes",
			Code:    "REC003",
		},
	},
	{
		pattern: "nothing to commit",
		msg: UserMessage{
			Message: "There are no selected rows without errors",
			Action:  "Select at least one valid row",
			Code:    "COM001",
		},
	},
	{
		pattern: "store write failed",
		msg: UserMessage{
			Message: "Saving to the catalog failed",
			Action:  "Retry the commit; your selection has been kept",
			Code:    "COM002",
		},
	},

	// =========================================================================
	// Validation Errors (VAL001-VAL005)
	// These errors occur when data does not match expected formats.
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
			Action:  "Use digits with an optional decimal separator",
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
	{
		pattern: "duplicate:",
		msg: UserMessage{
			Message: "This row duplicates an existing entry",
			Action:  "Change the code or name, or deselect the row",
			Code:    "VAL004",
		},
	},

	// =========================================================================
	// Session Errors (SES001-SES005, DS001-DS002)
	// These errors occur when an operation does not fit the session state.
	// =========================================================================
	{
		pattern: "import session not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The import may have expired. Please start a new import",
			Code:    "SES001",
		},
	},
	{
		pattern: "invalid transition",
		msg: UserMessage{
			Message: "This step is not available right now",
			Action:  "Finish the current step first",
			Code:    "SES002",
		},
	},
	{
		pattern: "session closed",
		msg: UserMessage{
			Message: "This import is already finished",
			Action:  "Start a new import",
			Code:    "SES003",
		},
	},
	{
		pattern: "record not found",
		msg: UserMessage{
			Message: "Row not found",
			Action:  "Refresh the preview",
			Code:    "SES004",
		},
	},
	{
		pattern: "unknown import kind",
		msg: UserMessage{
			Message: "Unknown import type",
			Action:  "Choose product, material or sale",
			Code:    "SES005",
		},
	},
	{
		pattern: "dataset not found",
		msg: UserMessage{
			Message: "Dataset not found",
			Action:  "Refresh the dataset list",
			Code:    "DS001",
		},
	},
	{
		pattern: "unknown export format",
		msg: UserMessage{
			Message: "This export format is not supported",
			Action:  "Choose xlsx or csv",
			Code:    "DS002",
		},
	},

	// =========================================================================
	// Database Errors (DB001-DB007)
	// These errors occur when the catalog store fails.
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Retry the import",
			Code:    "DB001",
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

	// =========================================================================
	// Upload Errors (UPL002-UPL005)
	// These errors occur during request handling.
	// =========================================================================
	{
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// These errors occur when request limits are exceeded.
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
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
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
//	msg := MapError(ErrNothingToCommit)
//	// msg.Code == "COM001"
//	// msg.Message == "There are no selected rows without errors"
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
//
// Example output: "The file has no data rows (Code: FILE005). Upload a file with a header row and at least one data row"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}
