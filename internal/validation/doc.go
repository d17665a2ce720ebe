// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package validation provides struct validation using go-playground/validator v10.
//
// This package wraps the go-playground/validator library to provide a thread-safe
// singleton validator instance with user-friendly error messages. It integrates
// with the application's API error format for consistent error responses.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Error translation to human-readable messages
//   - APIError conversion matching the application's error format
//   - Built-in validator support (ip, min, max, oneof, gte, lte, etc.)
//
// # Quick Start
//
//	type BanClientRequest struct {
//	    IPAddress string `validate:"required,ip"`
//	    UserAgent string `validate:"max=512"`
//	    Reason    string `validate:"required,max=1024"`
//	}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    var req BanClientRequest
//	    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
//	        // handle decode error
//	    }
//
//	    if verr := validation.ValidateStruct(&req); verr != nil {
//	        apiErr := verr.ToAPIError()
//	        respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	        return
//	    }
//
//	    // proceed with valid request
//	}
//
// # Common Validation Tags
//
// String validations:
//   - required: Field must not be empty
//   - min=n: Minimum length n characters
//   - max=n: Maximum length n characters
//   - ip: Valid IPv4 or IPv6 address
//   - uuid: Valid UUID
//
// Numeric validations:
//   - gte=n: Greater than or equal to n
//   - lte=n: Less than or equal to n
//   - min=n / max=n: Value bounds
//
// Enum validations:
//   - oneof=a b c: Must be one of the specified values
//
// # API Error Integration
//
// The ToAPIError method produces errors matching the application format:
//
//	// Single field error
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "IPAddress must be a valid IP address",
//	    "details": {"field": "IPAddress", "tag": "ip", "value": "not-an-ip"}
//	}
//
//	// Multiple field errors
//	{
//	    "code": "VALIDATION_ERROR",
//	    "message": "StudentID: StudentID is required; Reason: Reason is required",
//	    "details": {
//	        "fields": [
//	            {"field": "StudentID", "tag": "required", "message": "..."},
//	            {"field": "Reason", "tag": "required", "message": "..."}
//	        ]
//	    }
//	}
//
// # Thread Safety
//
// The singleton validator is initialized once and safe for concurrent use:
//
//	validate := validation.GetValidator()  // Thread-safe
//	err := validation.ValidateStruct(&req) // Thread-safe
//
// # See Also
//
//   - internal/api: Request handlers using validation
//   - internal/models: Request DTOs carrying validate tags
//   - github.com/go-playground/validator/v10: Underlying library
package validation
