package modemcore

// UmiCode is a 32-bit tag identifying a record in the external key/value
// store, built from four octets the way the original firmware's
// MAKE_UMI_CODE macro does.
type UmiCode uint32

func makeUmiCode(b3, b2, b1, b0 byte) UmiCode {
	return UmiCode(uint32(b3)<<24 | uint32(b2)<<16 | uint32(b1)<<8 | uint32(b0))
}

// UMI codes consumed by the core.
var (
	UmiModemSimInfo    = makeUmiCode(200, 2, 64, 1)
	UmiModemCfg        = makeUmiCode(200, 2, 64, 2)
	UmiModemStats      = makeUmiCode(200, 2, 64, 4)
	UmiModemCommStats  = makeUmiCode(200, 2, 64, 5)
	UmiModemStatistics = makeUmiCode(200, 2, 64, 6)
	UmiModemEventFifo  = makeUmiCode(200, 2, 64, 7)
)

// Store is the persistent key/value facade the core consumes for desired
// configuration input and status output. It is implemented by an external
// collaborator; the core never assumes anything about its backing
// storage.
type Store interface {
	ReadConfigAll(code UmiCode, buf []byte) (n int, err error)
	WriteMember(code UmiCode, member uint8, buf []byte) error
	ReadMember(code UmiCode, member uint8, out []byte) (n int, err error)
	WriteObject(code UmiCode, buf []byte) error
	ReadObject(code UmiCode, buf []byte) (n int, err error)
}

// Timer is the scheduler facade the core consumes to arm the periodic
// action tick and the one-shot AT timeout.
type Timer interface {
	StartRecurring(eventID int, periodMs int)
	StartOnce(eventID int, periodMs int)
	Stop(eventID int)
	IsRunning(eventID int) bool
}

// Event ids the core arms on the Timer.
const (
	EventActionTick = iota
	EventAtTimeout
)

const (
	tickPeriodMs  = 1000
	atTimeoutMs   = 4000
)

// SerialPort is the byte-level link to the module: transmit, hardware
// reset control, and the CTS boot/power indication line. The core is the
// sole reader; bytes arrive via the core's ByteIn method, which the
// adapter is expected to call once per received octet.
type SerialPort interface {
	Open() error
	Close() error
	Transmit(buf []byte) (int, error)
	ResetLow()
	ResetHigh()
	PulseOn()
	CTSHigh() bool
}

// FaultInjector lets tests force the module's misbehavior at the specific
// decision points the original firmware's modem_test_case_e enumerated
// (see SPEC_FULL.md, "Supplemented features"). Production callers leave
// this nil.
type FaultInjector interface {
	// SuppressCTSHigh drops the CTS-high boot indication.
	SuppressCTSHigh() bool
	// SuppressCTSLow drops the CTS-low AT-ready indication.
	SuppressCTSLow() bool
	// FailConnectionConfig makes +KCNXCFG appear to fail even on OK.
	FailConnectionConfig() bool
	// IgnorePowerOff drops the +CPOF acknowledgement.
	IgnorePowerOff() bool
	// DenyRegistration forces +CEREG to never report home/roaming.
	DenyRegistration() bool
	// FailSetter forces the next parameter setter action to fail.
	FailSetter() bool
}
