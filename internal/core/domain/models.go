package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountKind is the role the owning user plays on this account.
type AccountKind string

const (
	KindClient       AccountKind = "CLIENT"
	KindAgent        AccountKind = "AGENT"
	KindDistributeur AccountKind = "DISTRIBUTEUR"
)

// ValidAccountKind reports whether k is one of the three known kinds.
func ValidAccountKind(k AccountKind) bool {
	switch k {
	case KindClient, KindAgent, KindDistributeur:
		return true
	}
	return false
}

// TransactionKind is the monetary operation being posted.
type TransactionKind string

const (
	Depot     TransactionKind = "DEPOT"
	Retrait   TransactionKind = "RETRAIT"
	Transfert TransactionKind = "TRANSFERT"
)

// TransactionStatus tracks the lifecycle of a posted transaction.
// VALIDEE is the only status the engine produces at posting time;
// ANNULEE is terminal and reachable only from VALIDEE. EN_ATTENTE and
// REJETEE exist in the schema but are never produced by the engines.
type TransactionStatus string

const (
	StatusEnAttente TransactionStatus = "EN_ATTENTE"
	StatusValidee   TransactionStatus = "VALIDEE"
	StatusRejetee   TransactionStatus = "REJETEE"
	StatusAnnulee   TransactionStatus = "ANNULEE"
)

// Account holds the balance of one user acting in one role.
// At most one account may exist per (user, kind) pair, and the balance
// is never negative.
type Account struct {
	NumeroCompte             string          `json:"numeroCompte"`
	UserID                   uuid.UUID       `json:"userId"`
	TypeCompte               AccountKind     `json:"typeCompte"`
	Solde                    decimal.Decimal `json:"solde"`
	NumeroCompteAgent        string          `json:"numeroCompteAgent,omitempty"`
	NumeroCompteDistributeur string          `json:"numeroCompteDistributeur,omitempty"`
	IsActive                 bool            `json:"isActive"`
	DerniereTransaction      *time.Time      `json:"derniereTransaction,omitempty"`
	DateCreation             time.Time       `json:"dateCreation"`
}

// Transaction is the immutable record of one posted operation.
// The only legal mutation is cancellation: status flips VALIDEE -> ANNULEE
// and the reason is appended to the description.
type Transaction struct {
	NumeroTransaction        string            `json:"numeroTransaction"`
	TypeTransaction          TransactionKind   `json:"typeTransaction"`
	Montant                  decimal.Decimal   `json:"montant"`
	CompteSource             string            `json:"compteSource"`
	CompteDestination        string            `json:"compteDestination,omitempty"`
	NumeroCompteAgent        string            `json:"numeroCompteAgent,omitempty"`
	NumeroCompteDistributeur string            `json:"numeroCompteDistributeur,omitempty"`
	Commission               decimal.Decimal   `json:"commission"`
	Statut                   TransactionStatus `json:"statut"`
	Description              string            `json:"description"`
	DateTransaction          time.Time         `json:"dateTransaction"`
	HeureTransaction         string            `json:"heureTransaction"`
}

// User is an identity record. Only AGENT users may authenticate against
// the back-office; user lifecycle beyond login is outside the core.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Nom             string     `json:"nom"`
	Prenom          string     `json:"prenom"`
	Email           string     `json:"email"`
	TypeUtilisateur string     `json:"typeUtilisateur"`
	IsBlocked       bool       `json:"isBlocked"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// TypeStat is the per-kind slice of the aggregate report.
type TypeStat struct {
	Type   TransactionKind `json:"type"`
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// TransactionStats aggregates VALIDEE transactions. "Today" starts at
// midnight of the reporting day in the caller's location.
type TransactionStats struct {
	TransactionsToday int64           `json:"transactionsToday"`
	VolumeToday       decimal.Decimal `json:"volumeToday"`
	TotalTransactions int64           `json:"totalTransactions"`
	VolumeTotal       decimal.Decimal `json:"volumeTotal"`
	ByType            []TypeStat      `json:"byType"`
}
