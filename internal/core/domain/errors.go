package domain

import "errors"

// Domain errors. Handlers translate these to HTTP statuses; the engines
// guarantee that validation errors are raised before any mutation.
var (
	// ErrInvalidAmount: amount missing, zero or negative.
	ErrInvalidAmount = errors.New("montant invalide")

	// ErrInvalidKind: operation kind is not DEPOT or RETRAIT.
	ErrInvalidKind = errors.New("type de transaction invalide")

	// ErrAccountNotFound: the referenced account number does not resolve.
	ErrAccountNotFound = errors.New("compte non trouvé")

	// ErrInsufficientFunds: the movement would drive the balance negative.
	ErrInsufficientFunds = errors.New("solde insuffisant")

	// ErrTransactionNotFound: cancellation target absent.
	ErrTransactionNotFound = errors.New("transaction non trouvée")

	// ErrInvalidState: cancellation attempted on a non-VALIDEE transaction.
	ErrInvalidState = errors.New("cette transaction ne peut pas être annulée")

	// ErrConflict: an account already exists for this (user, kind) pair.
	ErrConflict = errors.New("ce compte existe déjà")

	// ErrStorage: underlying persistence failure, fatal to the request.
	ErrStorage = errors.New("erreur de stockage")
)

// IsClientError reports whether the error is caused by invalid input
// rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrTransactionNotFound)
}
