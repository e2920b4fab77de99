// Package models - API request types and validation.
//
// Identifiers arrive from upstream authentication flows. The service trims
// them and, for the login and email namespaces, case-folds them so that
// "Alice@Example.com " and "alice@example.com" share one attempt budget. The
// namespace becomes a key prefix so a username and an IP never collide.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Identifier namespaces accepted by the API.
const (
	NamespaceLogin = "login"
	NamespaceEmail = "email"
	NamespaceIP    = "ip"
)

// MaxIdentifierLength bounds identifier size to keep limiter memory predictable.
const MaxIdentifierLength = 256

// Pagination bounds for block event listings.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// AttemptRequest reports a login attempt for an identifier.
type AttemptRequest struct {
	Identifier string `json:"identifier"`
	Namespace  string `json:"namespace,omitempty"`
}

// Normalize trims the identifier and case-folds it where the namespace is
// case-insensitive.
func (r *AttemptRequest) Normalize() {
	r.Identifier, r.Namespace = normalizeIdentifier(r.Identifier, r.Namespace)
}

// Validate checks the identifier and namespace.
func (r *AttemptRequest) Validate() error {
	return validateIdentifier(r.Identifier, r.Namespace)
}

// Key returns the limiter key for the request. Call Normalize first.
func (r *AttemptRequest) Key() string {
	return IdentifierKey(r.Identifier, r.Namespace)
}

// IdentifierRequest addresses an identifier for status and reset calls.
type IdentifierRequest struct {
	Identifier string
	Namespace  string
}

func (r *IdentifierRequest) Normalize() {
	r.Identifier, r.Namespace = normalizeIdentifier(r.Identifier, r.Namespace)
}

func (r *IdentifierRequest) Validate() error {
	return validateIdentifier(r.Identifier, r.Namespace)
}

func (r *IdentifierRequest) Key() string {
	return IdentifierKey(r.Identifier, r.Namespace)
}

// ListBlocksRequest filters the block event journal.
type ListBlocksRequest struct {
	Identifier string
	Namespace  string
	Limit      int
}

func (r *ListBlocksRequest) Normalize() {
	r.Identifier, r.Namespace = normalizeIdentifier(r.Identifier, r.Namespace)
	if r.Limit == 0 {
		r.Limit = DefaultListLimit
	}
}

func (r *ListBlocksRequest) Validate() error {
	if r.Limit < 0 || r.Limit > MaxListLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxListLimit)
	}
	if r.Identifier == "" {
		return validateNamespace(r.Namespace)
	}
	return validateIdentifier(r.Identifier, r.Namespace)
}

// Filter converts the request into a journal filter.
func (r *ListBlocksRequest) Filter() BlockEventFilter {
	f := BlockEventFilter{Limit: r.Limit}
	if r.Identifier != "" {
		f.Identifier = IdentifierKey(r.Identifier, r.Namespace)
	}
	return f
}

// IdentifierKey joins namespace and identifier into a limiter key.
func IdentifierKey(identifier, namespace string) string {
	if namespace == "" {
		return identifier
	}
	return namespace + ":" + identifier
}

func normalizeIdentifier(identifier, namespace string) (string, string) {
	namespace = strings.ToLower(strings.TrimSpace(namespace))
	identifier = strings.TrimSpace(identifier)
	if namespace == NamespaceLogin || namespace == NamespaceEmail {
		identifier = strings.ToLower(identifier)
	}
	return identifier, namespace
}

func validateIdentifier(identifier, namespace string) error {
	if identifier == "" {
		return errors.New("identifier is required")
	}
	if len(identifier) > MaxIdentifierLength {
		return fmt.Errorf("identifier must be at most %d bytes", MaxIdentifierLength)
	}
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	// Without a namespace the identifier is the key itself, so it must not
	// look like a namespaced key.
	if namespace == "" {
		for _, ns := range []string{NamespaceLogin, NamespaceEmail, NamespaceIP} {
			if len(identifier) > len(ns) && strings.EqualFold(identifier[:len(ns)+1], ns+":") {
				return fmt.Errorf("identifier without namespace cannot start with %q; set namespace instead", ns+":")
			}
		}
	}
	return nil
}

func validateNamespace(namespace string) error {
	switch namespace {
	case "", NamespaceLogin, NamespaceEmail, NamespaceIP:
		return nil
	default:
		return fmt.Errorf("unsupported namespace: %s", namespace)
	}
}
