package service

import "github.com/shinyyama/sensor-market/internal/fault"

// not found
var (
	ErrNotFound            = fault.Missing("not_found", "not found")
	ErrMarketplaceNotFound = fault.Missing("marketplace_not_found", "marketplace not found")
	ErrDeviceNotFound      = fault.Missing("device_not_found", "device not found")
	ErrListingNotFound     = fault.Missing("listing_not_found", "listing not found")
	ErrPurchaseNotFound    = fault.Missing("purchase_not_found", "purchase record not found")
	ErrAccountNotFound     = fault.Missing("account_not_found", "token account not found")
	ErrJobNotFound         = fault.Missing("job_not_found", "computation job not found")
)

// validation
var (
	ErrInvalidName           = fault.Invalid("invalid_name", "name must be 1-50 letters, digits, spaces, '-' or '_'")
	ErrInvalidFeeBps         = fault.Invalid("invalid_fee_bps", "fee basis points must be at most 10000")
	ErrInvalidMint           = fault.Invalid("invalid_mint", "token mint is required")
	ErrInvalidDeviceID       = fault.Invalid("invalid_device_id", "device id must be 1-64 characters of [A-Za-z0-9_.:-]")
	ErrDataCIDEmpty          = fault.Invalid("data_cid_empty", "data cid must not be empty")
	ErrMxeCapsuleCIDEmpty    = fault.Invalid("mxe_capsule_cid_empty", "mxe capsule cid must not be empty")
	ErrCidEmpty              = fault.Invalid("cid_empty", "cid must not be empty")
	ErrCidTooLong            = fault.Invalid("cid_too_long", "cid must be at most 64 bytes")
	ErrInvalidPrice          = fault.Invalid("invalid_price", "price per unit must be between 1 and 2^63-1")
	ErrInvalidDataUnits      = fault.Invalid("invalid_data_units", "total data units must be between 1 and 2^63-1")
	ErrInvalidExpiry         = fault.Invalid("invalid_expiry", "expiry must be in the future")
	ErrInvalidUnitsRequested = fault.Invalid("invalid_units_requested", "invalid number of units requested")
	ErrInvalidPublicKey      = fault.Invalid("invalid_public_key", "x25519 public key must be a valid 32-byte point")
	ErrCannotBuyOwnListing   = fault.Invalid("cannot_buy_own_listing", "cannot buy your own listing")
	ErrClusterNotSet         = fault.Invalid("cluster_not_set", "computation id must be non-zero")
	ErrComputationIDRange    = fault.Invalid("computation_id_range", "computation id must fit in 63 bits")
	ErrCircuitMismatch       = fault.Invalid("circuit_mismatch", "callback is for a different circuit")
	ErrBadCallbackOutput     = fault.Invalid("bad_callback_output", "callback output is malformed")
	ErrMissingIdentity       = fault.Invalid("missing_identity", "caller identity is required")
)

// referential integrity between the supplied records
var (
	ErrWrongMarketplaceForListing = fault.Invalid("wrong_marketplace_for_listing", "listing belongs to a different marketplace")
	ErrWrongDeviceForListing      = fault.Invalid("wrong_device_for_listing", "listing references a different device")
	ErrWrongMintForListing        = fault.Invalid("wrong_mint_for_listing", "settlement mint does not match listing")
	ErrWrongMarketplaceForDevice  = fault.Invalid("wrong_marketplace_for_device", "device is registered in a different marketplace")
	ErrRecordListingMismatch      = fault.Invalid("record_listing_mismatch", "purchase record does not belong to listing")
	ErrAccountWrongMint           = fault.Invalid("account_wrong_mint", "token account holds a different mint")
)

// authorization
var (
	ErrForbidden              = fault.Unauthorized("forbidden", "not allowed")
	ErrUnauthorized           = fault.Unauthorized("unauthorized", "caller is not the owner")
	ErrWrongTreasuryAuthority = fault.Unauthorized("wrong_treasury_authority", "treasury authority does not match marketplace")
	ErrAccountWrongOwner      = fault.Unauthorized("account_wrong_owner", "token account is owned by someone else")
	ErrUnauthorizedFinalize   = fault.Unauthorized("unauthorized_finalize", "only the seller or marketplace admin may finalize")
	ErrBuyerKeyMismatch       = fault.Unauthorized("buyer_key_mismatch", "public key differs from the one captured at purchase")
	ErrUntrustedCallback      = fault.Unauthorized("untrusted_callback", "callback did not come from the secure-computation program")
)

// state conflicts
var (
	ErrMarketplaceExists     = fault.Conflicting("marketplace_exists", "marketplace already exists")
	ErrMarketplaceInactive   = fault.Conflicting("marketplace_inactive", "marketplace is not active")
	ErrDeviceExists          = fault.Conflicting("device_exists", "device already registered")
	ErrDeviceInactive        = fault.Conflicting("device_inactive", "device is inactive")
	ErrListingExists         = fault.Conflicting("listing_exists", "a listing for this device already exists")
	ErrListingNotActive      = fault.Conflicting("listing_not_active", "listing is not active")
	ErrListingExpired        = fault.Conflicting("listing_expired", "listing has expired")
	ErrInsufficientUnits     = fault.Conflicting("insufficient_units", "not enough units remaining")
	ErrInsufficientFunds     = fault.Conflicting("insufficient_funds", "insufficient funds")
	ErrPurchaseIndexMismatch = fault.Conflicting("purchase_index_mismatch", "purchase index is stale; re-read the listing")
	ErrAlreadyFinalized      = fault.Conflicting("already_finalized", "purchase already finalized")
	ErrMissingMxeCapsule     = fault.Conflicting("missing_mxe_capsule_on_record", "purchase record has no mxe capsule")
	ErrResealInProgress      = fault.Conflicting("reseal_in_progress", "a reseal request is already outstanding")
	ErrDuplicateComputation  = fault.Conflicting("duplicate_computation", "computation id already used")
	ErrJobNotOpen            = fault.Conflicting("job_not_open", "computation job already resolved")
)

// arithmetic
var (
	ErrMathOverflow = fault.Overflow("math_overflow", "arithmetic overflow")
	ErrFeeMismatch  = fault.Overflow("fee_mismatch", "fee split does not add up to price")
)

// external
var (
	ErrAbortedComputation = fault.Upstream("aborted_computation", "secure computation aborted")
	ErrSubmitFailed       = fault.Upstream("submit_failed", "secure computation request could not be submitted")
)
