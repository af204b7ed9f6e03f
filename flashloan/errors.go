package flashloan

import "errors"

var (
	// ErrUnsupportedAsset keeps the exact ERC-3156 reference message
	ErrUnsupportedAsset              = errors.New("Unsupported currency")
	ErrInvalidAmount                 = errors.New("flashloan: amount must be positive")
	ErrUntrustedCaller               = errors.New("flashloan: callback not from the trusted pool or not initiated by this lender")
	ErrMalformedParams               = errors.New("flashloan: malformed callback params")
	ErrPremiumMismatch               = errors.New("flashloan: pool premium differs from quoted fee")
	ErrCallbackRejected              = errors.New("flashloan: callback failed")
	ErrInsufficientRepaymentApproval = errors.New("flashloan: repayment not approved")
	ErrNoLender                      = errors.New("flashloan: no lender can serve the request")
	ErrLenderExists                  = errors.New("flashloan: lender already registered")
)
