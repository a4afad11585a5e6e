package chain

import (
	"errors"
	"strings"

	"github.com/defolio/defolio/internal/domain"
)

// userRejectedCodes are provider error codes that mean explicit user denial.
// 4001 is the EIP-1193 userRejectedRequest code; 4100 is unauthorized, which
// some wallets return when the user dismisses the prompt.
var userRejectedCodes = map[int]bool{
	4001: true,
	4100: true,
}

// rejectionKeywords are lowercase fragments seen in cancellation messages
// across wallet providers. Providers are not uniform, so this matching is
// necessarily heuristic; new providers are supported by extending this table.
var rejectionKeywords = []string{
	"user rejected",
	"user denied",
	"user cancelled",
	"user canceled",
	"rejected the request",
	"action_rejected",
	"request rejected",
}

// ClassifySigningError decides whether a provider error is an explicit user
// rejection or a genuine failure. Rejections become domain.UserRejectedError
// so the orchestrator can abort benignly instead of surfacing an error.
func ClassifySigningError(err error) error {
	if err == nil {
		return nil
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if userRejectedCodes[provErr.Code] || matchesRejection(provErr.Message) {
			return &domain.UserRejectedError{Code: provErr.Code, Message: provErr.Message}
		}
		return err
	}

	if matchesRejection(err.Error()) {
		return &domain.UserRejectedError{Message: err.Error()}
	}
	return err
}

func matchesRejection(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range rejectionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
