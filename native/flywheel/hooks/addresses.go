package hooks

// Built-in hook policies live at well-known addresses derived from their
// names, so every deployment binds campaigns to the same identities.
var (
	SimpleRewardsAddress           = hookAddress("simple")
	CashbackRewardsAddress         = hookAddress("cashback")
	AdvertisementConversionAddress = hookAddress("conversion")
	BridgeReferralFeesAddress      = hookAddress("bridge")
)

func hookAddress(name string) [20]byte {
	digest := keccak([]byte("flywheel/hook/" + name))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
