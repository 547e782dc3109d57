package market

import errorsmod "cosmossdk.io/errors"

// ModuleName is the codespace under which marketplace errors register.
const ModuleName = "roflmarket"

var (
	ErrProviderNotFound    = errorsmod.Register(ModuleName, 1, "provider not found")
	ErrProviderExists      = errorsmod.Register(ModuleName, 2, "provider already exists")
	ErrOfferNotFound       = errorsmod.Register(ModuleName, 3, "offer not found")
	ErrBadResourceDescriptor = errorsmod.Register(ModuleName, 4, "bad resource descriptor")
	ErrNoCapacity          = errorsmod.Register(ModuleName, 5, "offer has no available capacity")
	ErrInstanceNotFound    = errorsmod.Register(ModuleName, 6, "instance not found")
	ErrUnpricedTerm        = errorsmod.Register(ModuleName, 7, "offer does not price the requested term")
	ErrNotProvider         = errorsmod.Register(ModuleName, 8, "caller is not the provider")
	ErrNotAdmin            = errorsmod.Register(ModuleName, 9, "caller is not the instance admin")
	ErrWrongStatus         = errorsmod.Register(ModuleName, 10, "instance is not in the required status")
	ErrPaymentFailed       = errorsmod.Register(ModuleName, 11, "evm contract payment call failed")
)
