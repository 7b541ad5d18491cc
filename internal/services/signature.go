package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CancellationToken must be typed verbatim to confirm a cancellation.
const CancellationToken = "CANCELAR"

// signatureMatches compares a typed signature with the contractant name.
// Case and surrounding space are ignored; accents are not.
func signatureMatches(typed, clientName string) bool {
	a, b := foldName(typed), foldName(clientName)
	return a != "" && a == b
}

func foldName(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// cancellationConfirmed requires the exact token, case included.
func cancellationConfirmed(typed string) bool {
	return typed == CancellationToken
}
