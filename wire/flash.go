package wire

// FlashLayout describes the fixed 32 KiB flash region table from §6. Every
// address is a compile-time constant the way the original firmware's linker
// script fixes them; Go has no linker-assertion mechanism, so the invariant
// that the application region is a multiple of 16 bytes (a CBC-MAC
// precondition, §4.3) is checked in this package's init() instead, which is
// this module's nearest equivalent of a link-time static assertion.
const (
	BootloaderStart = 0x0000
	BootloaderEnd   = 0x03CB

	SigKeysStart = 0x03CC
	SigKeysEnd   = 0x03FB

	ReservedStart = 0x03FC
	ReservedEnd   = 0x03FD

	HWIDAddrStart = 0x03FE
	HWIDAddrEnd   = 0x03FF

	AppCodeStart = 0x0400
	AppCodeEnd   = 0x6BEF

	AppSigStart = 0x6BF0
	AppSigEnd   = 0x6BFF

	StorageStart = 0x6C00
	StorageEnd   = 0x6FFF

	UpdaterStart = 0x7000
	UpdaterEnd   = 0x7FFF

	// AppRegionLen is the size in bytes of the application code region that
	// the signed-image verifier CBC-MACs. It must be a multiple of 16.
	AppRegionLen = AppCodeEnd - AppCodeStart + 1

	// MaxSigKeys is N in spec §4.3: up to 3 stored signature keys are tried.
	MaxSigKeys = 3
)

func init() {
	if AppRegionLen%16 != 0 {
		panic("wire: application flash region length is not a multiple of 16")
	}
}
