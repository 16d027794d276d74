package modemcore

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// loadDesiredConfig reads the desired configuration UMI record at the
// start of every RESET-REQUIRED pass (the design notes call this "taking a
// fresh copy of desired configuration each wake cycle"). A missing or
// malformed record is not fatal: the driver keeps whatever DesiredConfig it
// already had, which for a first run is the zero value.
func (c *Core) loadDesiredConfig() {
	if c.store == nil {
		return
	}
	var buf [256]byte
	n, err := c.store.ReadObject(UmiModemCfg, buf[:])
	if err != nil || n <= 0 {
		return
	}
	d, err := decodeDesiredConfig(buf[:n])
	if err != nil {
		if c.log != nil {
			c.log.Warnf("modemcore: malformed configuration record: %v", err)
		}
		return
	}
	c.desired = d
}

// desiredConfigFixedLen is the number of fixed-width bytes preceding the
// two length-prefixed strings (APN, then remote address).
const desiredConfigFixedLen = 21

func decodeDesiredConfig(buf []byte) (DesiredConfig, error) {
	if len(buf) < desiredConfigFixedLen {
		return DesiredConfig{}, errConfigTooShort
	}
	var d DesiredConfig
	d.ConnType = ConnType(buf[0])
	d.PreferredCount = int(buf[1])
	for i := 0; i < 3; i++ {
		d.PreferredRAT[i] = RAT(buf[2+i])
	}
	d.Bands[RATCatM1] = binary.BigEndian.Uint32(buf[5:9])
	d.Bands[RATNBIoT] = binary.BigEndian.Uint32(buf[9:13])
	d.RemotePort = binary.BigEndian.Uint16(buf[13:15])
	d.WaitForResponseTimeoutSec = int(binary.BigEndian.Uint16(buf[15:17]))
	d.WaitForRegistrationTimeoutSec = int(binary.BigEndian.Uint16(buf[17:19]))
	d.SessionTimeoutSec = int(binary.BigEndian.Uint16(buf[19:21]))

	rest := buf[desiredConfigFixedLen:]
	apn, rest, err := readLenPrefixed(rest)
	if err != nil {
		return DesiredConfig{}, errors.Wrap(err, "decoding APN")
	}
	addr, _, err := readLenPrefixed(rest)
	if err != nil {
		return DesiredConfig{}, errors.Wrap(err, "decoding remote address")
	}
	d.APN = apn
	d.RemoteAddress = addr
	return d, nil
}

// encodeDesiredConfig is the inverse of decodeDesiredConfig: it produces the
// record layout that loadDesiredConfig reads.
func encodeDesiredConfig(d DesiredConfig) []byte {
	buf := make([]byte, desiredConfigFixedLen)
	buf[0] = byte(d.ConnType)
	buf[1] = byte(d.PreferredCount)
	for i := 0; i < 3; i++ {
		buf[2+i] = byte(d.PreferredRAT[i])
	}
	binary.BigEndian.PutUint32(buf[5:9], d.Bands[RATCatM1])
	binary.BigEndian.PutUint32(buf[9:13], d.Bands[RATNBIoT])
	binary.BigEndian.PutUint16(buf[13:15], d.RemotePort)
	binary.BigEndian.PutUint16(buf[15:17], uint16(d.WaitForResponseTimeoutSec))
	binary.BigEndian.PutUint16(buf[17:19], uint16(d.WaitForRegistrationTimeoutSec))
	binary.BigEndian.PutUint16(buf[19:21], uint16(d.SessionTimeoutSec))
	buf = appendLenPrefixed(buf, d.APN)
	buf = appendLenPrefixed(buf, d.RemoteAddress)
	return buf
}

func readLenPrefixed(b []byte) (string, []byte, error) {
	if len(b) < 1 {
		return "", nil, errConfigTooShort
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", nil, errConfigTooShort
	}
	return string(b[1 : 1+n]), b[1+n:], nil
}

func appendLenPrefixed(buf []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}
