package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrTimeout         = errors.New("timed out waiting for the network")
	ErrChainNotAllowed = errors.New("chain is not supported")
	ErrNotConnected    = errors.New("wallet is not connected")
)

// EngineError is returned for any failed exchange with the contract engine.
// Message is the engine's own description, kept verbatim so it can be
// classified.
type EngineError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: engine returned %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

type ErrorClass int

const (
	ClassGeneric ErrorClass = iota
	ClassUserRejected
	ClassInsufficientFunds
	ClassTimeout
	ClassNetwork
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUserRejected:
		return "user-rejected"
	case ClassInsufficientFunds:
		return "insufficient-funds"
	case ClassTimeout:
		return "timeout"
	case ClassNetwork:
		return "network"
	}
	return "generic"
}

// UserMessage is what gets shown to a person when a write fails.
func (c ErrorClass) UserMessage() string {
	switch c {
	case ClassUserRejected:
		return "The transaction was rejected in the wallet."
	case ClassInsufficientFunds:
		return "The wallet does not have enough funds to pay for this transaction."
	case ClassTimeout:
		return "The network took too long to confirm the transaction. It may still go through; check again before retrying."
	case ClassNetwork:
		return "Could not reach the network. Check your connection and try again."
	}
	return "The transaction failed."
}

var rejectionPhrases = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"action_rejected",
	"request rejected",
}

var fundsPhrases = []string{
	"insufficient funds",
	"insufficient balance",
	"exceeds balance",
}

var networkPhrases = []string{
	"network error",
	"connection refused",
	"connection reset",
	"no such host",
	"failed to fetch",
}

// Classify sorts an error from a contract call into one of the classes
// people get distinct messages for.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassGeneric
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, rejectionPhrases):
		return ClassUserRejected
	case containsAny(msg, fundsPhrases):
		return ClassInsufficientFunds
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}
	if containsAny(msg, networkPhrases) {
		return ClassNetwork
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return ClassTimeout
	}

	return ClassGeneric
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
