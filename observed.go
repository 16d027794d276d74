package modemcore

// RAT identifies a radio access technology the module can be configured for.
type RAT int

const (
	RATCatM1 RAT = iota
	RATNBIoT
	RATGSM
	ratCount
)

func (r RAT) String() string {
	switch r {
	case RATCatM1:
		return "Cat-M1"
	case RATNBIoT:
		return "NB-IoT"
	case RATGSM:
		return "GSM"
	default:
		return "unknown"
	}
}

// ConnType is the transport type requested for the application session.
type ConnType int

const (
	ConnTCP ConnType = iota
	ConnUDP
)

func (c ConnType) String() string {
	if c == ConnUDP {
		return "UDP"
	}
	return "TCP"
}

// RegistrationStatus mirrors the +CEREG stat values the module reports.
type RegistrationStatus int

const (
	RegUnknown RegistrationStatus = iota
	RegNotRegistered
	RegHome
	RegSearching
	RegDenied
	RegRoaming
	RegOther
)

func registrationFromCode(code int) RegistrationStatus {
	switch code {
	case 0:
		return RegNotRegistered
	case 1:
		return RegHome
	case 2:
		return RegSearching
	case 3:
		return RegDenied
	case 4:
		return RegUnknown
	case 5:
		return RegRoaming
	default:
		return RegOther
	}
}

// IsRegistered reports whether the status represents attachment to a network,
// home or roaming.
func (s RegistrationStatus) IsRegistered() bool {
	return s == RegHome || s == RegRoaming
}

// PDPContext is one module-resident packet data protocol binding.
type PDPContext struct {
	ID      string
	Type    string
	APN     string
	Address string
}

func (p PDPContext) known() bool {
	return p.ID != ""
}

// SignalQuality is one +CESQ snapshot.
type SignalQuality struct {
	RxLev, Ber, Rscp, Ecno, Rsrq, Rsrp int
}

// ObservedRecord is the single source of truth about what the module has
// told the driver. It is written only by the Response Parser; every other
// component is a read-only consumer.
type ObservedRecord struct {
	Model         string
	Firmware      string
	FactorySerial string
	EquipmentID   string
	SIMID         string

	// Functionality holds the raw decimal string the module reported for
	// +CFUN ("0", "1", "4"), or "" if not yet observed.
	Functionality string

	Registration    RegistrationStatus
	RegistrationRaw int

	PDP [2]PDPContext

	Bands      [ratCount]uint32
	BandsKnown [ratCount]bool

	PreferredRAT   [3]RAT
	PreferredValid bool

	ActiveBand      uint32
	ActiveRAT       RAT
	ActiveBandKnown bool

	Signal                   SignalQuality
	SignalTimestamp          int64 // uptime seconds of the last sample
	SignalPersistedTimestamp int64
	signalSampled            bool

	// ReportingMode is the raw +CEREG=n mode string, "" if unknown.
	ReportingMode string
}

func (o *ObservedRecord) reset() {
	*o = ObservedRecord{}
}

func (o *ObservedRecord) isOff() bool      { return o.Functionality == "0" }
func (o *ObservedRecord) isFull() bool     { return o.Functionality == "1" }
func (o *ObservedRecord) isAirplane() bool { return o.Functionality == "4" }
func (o *ObservedRecord) funcKnown() bool  { return o.Functionality != "" }

// DesiredConfig is supplied by the external store at the start of each
// wake-up and considered immutable for the duration of one session.
type DesiredConfig struct {
	APN            string
	RemoteAddress  string
	RemotePort     uint16
	ConnType       ConnType
	Bands          [ratCount]uint32
	PreferredRAT   [3]RAT
	PreferredCount int

	WaitForResponseTimeoutSec     int
	WaitForRegistrationTimeoutSec int
	SessionTimeoutSec             int
}
