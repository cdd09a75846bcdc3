// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors provides classification and user-friendly handling of
// HTTP transport errors. The classifiers drive the authentication retry loop
// (transport-level failures are retryable) and the human-readable error output
// shown when the Xray Cloud API cannot be reached.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// IsTransient reports whether the error is a transport-level failure worth
// retrying: a timeout, DNS failure, refused or reset connection. HTTP status
// codes are not visible here; status-based retry decisions belong to the caller.
func IsTransient(err error) bool {
	return IsTimeout(err) || IsDNS(err) || IsConnectionRefused(err)
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// IsDNS checks if the error is a DNS resolution error.
func IsDNS(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsConnectionRefused checks if the error is a connection refused error.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused")
}

// IsTLS checks if the error is an SSL/TLS error.
func IsTLS(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "ssl") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// FormatNetworkError converts technical HTTP/network errors into user-friendly
// messages. It detects common error types (timeout, DNS, connection refused,
// TLS) and displays troubleshooting information, then returns a wrapped error
// for logging.
func FormatNetworkError(err error, context string) error {
	if err == nil {
		return nil
	}

	displayErrorMessage(err, context)

	return fmt.Errorf("network error: %w", err)
}

// displayErrorMessage shows a formatted error message to the user based on error type.
func displayErrorMessage(err error, context string) {
	switch {
	case IsTimeout(err):
		pterm.Printf("Connection timeout while %s\n", context)
		pterm.Println()
		pterm.Println("The Xray Cloud API took too long to respond. This could mean:")
		pterm.Println("  • Slow internet connection")
		pterm.Println("  • The API is under heavy load")
		pterm.Println("  • A network firewall or proxy is blocking the connection")
		pterm.Println()
	case IsDNS(err):
		pterm.Printf("Cannot resolve server address while %s\n", context)
		pterm.Println()
		pterm.Println("Unable to look up the Xray Cloud API host. Please check:")
		pterm.Println("  • Your internet connection is working")
		pterm.Println("  • DNS settings are correct")
		pterm.Println("  • Proxy configuration, if your network requires one")
		pterm.Println()
	case IsConnectionRefused(err):
		pterm.Printf("Connection refused while %s\n", context)
		pterm.Println()
		pterm.Println("The server is not accepting connections. This could mean:")
		pterm.Println("  • The service is temporarily down")
		pterm.Println("  • Firewall is blocking the connection")
		pterm.Println("  • Wrong proxy address or port")
		pterm.Println()
	case IsTLS(err):
		pterm.Printf("Secure connection failed while %s\n", context)
		pterm.Println()
		pterm.Println("Cannot establish a secure HTTPS connection. Try:")
		pterm.Println("  • Check your system date and time")
		pterm.Println("  • Verify network proxy settings")
		pterm.Println()
	default:
		pterm.Printf("Cannot reach the Xray Cloud API while %s\n", context)
		pterm.Println()
		pterm.Println("Please check:")
		pterm.Println("  • Your internet connection")
		pterm.Println("  • Whether xray.cloud.getxray.app is accessible from your network")
		pterm.Println("  • Firewall or proxy settings that might block HTTPS requests")
		pterm.Println()

		if details := err.Error(); details != "" {
			if len(details) > 100 {
				details = details[:100] + "..."
			}
			pterm.Debug.Printf("Technical details: %s\n", details)
			pterm.Println()
		}
	}
}
