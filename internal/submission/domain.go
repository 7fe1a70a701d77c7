// Package submission sends signed documents to the fiscal authority or an
// intermediary and classifies the response.
package submission

import "context"

// Outcome is the classification of one submission attempt. Every attempt
// resolves to exactly one outcome; there is no silent path.
type Outcome string

const (
	// OutcomeAccepted means the authority positively confirmed receipt.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected means the authority explicitly refused the document.
	// Resubmitting unchanged bytes will be refused again, so it is not
	// retryable by default.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTransient covers network errors, timeouts and 5xx responses.
	OutcomeTransient Outcome = "transient_failure"
	// OutcomeAuthFailure means the channel refused our credential or API
	// key. Retried only after operator intervention.
	OutcomeAuthFailure Outcome = "auth_failure"
)

// Retryable reports whether the sweep may re-drive this outcome without an
// operator touching it first.
func (o Outcome) Retryable() bool { return o == OutcomeTransient }

// Result is the classified outcome of a submission attempt.
type Result struct {
	Outcome          Outcome
	ConfirmationCode string // authority-issued, only on acceptance
	ReasonCode       string // authority reason, only on rejection
	Err              string // transport or channel error detail
}

// Channel names. These are persisted on submission attempts, so renames
// are schema changes.
const (
	ChannelSII             = "sii"
	ChannelFacturae        = "facturae"
	ChannelVerifactuSigner = "verifactu"
)

// Channel is one wire transport to an authority or intermediary.
type Channel interface {
	Name() string
	Submit(ctx context.Context, signedXML []byte) (Result, error)
}
