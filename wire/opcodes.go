package wire

// Application opcode space (§6 "Opcode set (excerpt; application)"), plus
// the GET/SET_RADIOTELEM, RESET_RADIOTELEM, and FORWARD_READY opcodes named
// in the same excerpt but otherwise undiscussed in the component design —
// handled in dispatch alongside the rest.
const (
	OpACK              = 0x10
	OpNACK             = 0xff
	OpReboot           = 0x12
	OpGetTime          = 0x13
	OpSetTime          = 0x14
	OpRanging          = 0x15
	OpRangingAck       = 0x16
	OpGetTelem         = 0x17
	OpTelem            = 0x18
	OpGetCallsign      = 0x19
	OpSetCallsign      = 0x1a
	OpCallsign         = 0x1b
	OpStart            = 0x1e
	OpRebooting        = 0x1f
	OpGetRadioTelem    = 0x21
	OpRadioTelem       = 0x22
	OpSetRadioTelem    = 0x23
	OpResetRadioTelem  = 0x24
	OpSetRxEnabled     = 0x2a
	OpForwardReady     = 0x31
	OpGetAuthentEnable = 0x40
	OpSetAuthentEnable = 0x42
	OpGetAroKey        = 0x43
	OpSetAroKey        = 0x45
	OpGetMainKey       = 0x50
	OpObcData          = 0x60
)

// Bootloader opcode space is disjoint from the application's; the updater
// never interprets an application opcode and vice versa.
const (
	BootOpPing      = 0x00
	BootOpAck       = 0x01
	BootOpWritePage = 0x02
	BootOpErase     = 0x0c
	BootOpStart     = 0x0e
	BootOpNack      = 0x0f
)

// AutoRebootMax is the cap on a REBOOT command's deferral, in seconds
// (§4.8, one week).
const AutoRebootMax = 604800

// EndOfImagePage is the WRITE_PAGE page number that marks the end of an
// uploaded image (§4.9).
const EndOfImagePage = 255
