package status

import "errors"

// wallet / session
var (
	ErrProviderUnavailable = errors.New("wallet: no wallet provider available")
	ErrUserRejected        = errors.New("wallet: request rejected by user")
	ErrUnregisteredNetwork = errors.New("wallet: network not registered in wallet")
	ErrConnectInProgress   = errors.New("wallet: connection already in progress")
	ErrNotConnected        = errors.New("session: wallet not connected")
	ErrWrongNetwork        = errors.New("session: wallet bound to a different network")
)

// ledger
var (
	ErrNoCaller          = errors.New("ledger: no connected account")
	ErrInvalidAddress    = errors.New("ledger: invalid account address")
	ErrInvalidPrice      = errors.New("ledger: invalid price")
	ErrNotFound          = errors.New("ledger: ticket not found")
	ErrNotOwner          = errors.New("ledger: caller does not own ticket")
	ErrNotForSale        = errors.New("ledger: ticket is not for sale")
	ErrPriceMismatch     = errors.New("ledger: tendered price does not match resale price")
	ErrTransactionFailed = errors.New("ledger: transaction failed")
	ErrTokenIDMissing    = errors.New("ledger: minted token id not found in receipt")
	ErrCircuitOpen       = errors.New("ledger: circuit breaker is open")
)

// market
var (
	ErrBusy = errors.New("market: another action is still processing")
)
