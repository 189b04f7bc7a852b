package types

// Error codes
const (
	ErrCodeProviderMissing        = "PROVIDER_MISSING"
	ErrCodeUserRejected           = "USER_REJECTED"
	ErrCodeUnsupportedChain       = "UNSUPPORTED_CHAIN"
	ErrCodeWalletDisconnected     = "WALLET_DISCONNECTED"
	ErrCodeWalletRequired         = "WALLET_REQUIRED"
	ErrCodeManualTransferRequired = "MANUAL_TRANSFER_REQUIRED"
	ErrCodeRateFetchIncomplete    = "RATE_FETCH_INCOMPLETE"
	ErrCodeReceiptPending         = "RECEIPT_PENDING"
	ErrCodeExternalAPIUnavailable = "EXTERNAL_API_UNAVAILABLE"
	ErrCodeChainNotAdded          = "CHAIN_NOT_ADDED"
	ErrCodeUnknownTarget          = "UNKNOWN_TARGET"
	ErrCodeEmptyCart              = "EMPTY_CART"
	ErrCodeAlreadyPaid            = "ALREADY_PAID"
	ErrCodeConfig                 = "CONFIG_ERROR"
	ErrCodeInvalidTxHash          = "INVALID_TX_HASH"
)

// CheckoutError is a coded error. Two CheckoutErrors match under errors.Is
// when their codes are equal.
type CheckoutError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *CheckoutError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

func (e *CheckoutError) Is(target error) bool {
	t, ok := target.(*CheckoutError)
	return ok && t.Code == e.Code
}

// NewError builds a CheckoutError wrapping err.
func NewError(code, message string, err error) *CheckoutError {
	return &CheckoutError{Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrProviderMissing        = &CheckoutError{Code: ErrCodeProviderMissing, Message: "no wallet provider available, install a wallet extension"}
	ErrUserRejected           = &CheckoutError{Code: ErrCodeUserRejected, Message: "request rejected by user"}
	ErrUnsupportedChain       = &CheckoutError{Code: ErrCodeUnsupportedChain, Message: "wallet is on an unsupported network"}
	ErrWalletDisconnected     = &CheckoutError{Code: ErrCodeWalletDisconnected, Message: "wallet disconnected, please reconnect"}
	ErrWalletRequired         = &CheckoutError{Code: ErrCodeWalletRequired, Message: "please connect your wallet first"}
	ErrManualTransferRequired = &CheckoutError{Code: ErrCodeManualTransferRequired, Message: "this network requires a manual transfer"}
	ErrRateFetchIncomplete    = &CheckoutError{Code: ErrCodeRateFetchIncomplete, Message: "received incomplete price data"}
	ErrReceiptPending         = &CheckoutError{Code: ErrCodeReceiptPending, Message: "transaction receipt not available yet"}
	ErrExternalAPIUnavailable = &CheckoutError{Code: ErrCodeExternalAPIUnavailable, Message: "external api unavailable"}
	ErrChainNotAdded          = &CheckoutError{Code: ErrCodeChainNotAdded, Message: "network is not added to the wallet"}
	ErrUnknownTarget          = &CheckoutError{Code: ErrCodeUnknownTarget, Message: "unsupported asset or network"}
	ErrEmptyCart              = &CheckoutError{Code: ErrCodeEmptyCart, Message: "cart is empty"}
	ErrAlreadyPaid            = &CheckoutError{Code: ErrCodeAlreadyPaid, Message: "order already paid"}
	ErrConfig                 = &CheckoutError{Code: ErrCodeConfig, Message: "invalid configuration"}
	ErrInvalidTxHash          = &CheckoutError{Code: ErrCodeInvalidTxHash, Message: "invalid transaction hash"}
)
