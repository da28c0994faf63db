package ads1256

import "fmt"

// Register is a register address in the ADS1256 register map.
type Register byte

// Register map, datasheet table 23.
const (
	RegStatus Register = 0x00 // ID3 ID2 ID1 ID0 ORDER ACAL BUFEN DRDY
	RegMux    Register = 0x01 // PSEL3..PSEL0 NSEL3..NSEL0
	RegADCON  Register = 0x02 // 0 CLK1 CLK0 SDCS1 SDCS0 PGA2 PGA1 PGA0
	RegDRate  Register = 0x03 // DR7..DR0
	RegIO     Register = 0x04 // DIR3..DIR0 DIO3..DIO0
	RegOFC0   Register = 0x05
	RegOFC1   Register = 0x06
	RegOFC2   Register = 0x07
	RegFSC0   Register = 0x08
	RegFSC1   Register = 0x09
	RegFSC2   Register = 0x0A

	// NumRegisters is the size of the register map.
	NumRegisters = 11
)

var registerNames = [NumRegisters]string{
	"STATUS", "MUX", "ADCON", "DRATE", "IO",
	"OFC0", "OFC1", "OFC2", "FSC0", "FSC1", "FSC2",
}

func (r Register) String() string {
	if int(r) < NumRegisters {
		return registerNames[r]
	}
	return fmt.Sprintf("REG(0x%02x)", byte(r))
}

// Valid reports whether r is inside the register map.
func (r Register) Valid() bool {
	return int(r) < NumRegisters
}

// Command is a single byte opcode.
type Command byte

// Command set, datasheet table 24. RREG and WREG are OR'd with a register
// address.
const (
	CmdWakeup   Command = 0x00
	CmdRData    Command = 0x01
	CmdRDataC   Command = 0x03
	CmdSDataC   Command = 0x0F
	CmdRReg     Command = 0x10
	CmdWReg     Command = 0x50
	CmdSelfCal  Command = 0xF0
	CmdSelfOCal Command = 0xF1
	CmdSelfGCal Command = 0xF2
	CmdSysOCal  Command = 0xF3
	CmdSysGCal  Command = 0xF4
	CmdSync     Command = 0xFC
	CmdStandby  Command = 0xFD
	CmdReset    Command = 0xFE
	CmdWakeup1  Command = 0xFF
)

// STATUS register bits.
const (
	StatusDRDY  = 0x01
	StatusBufEn = 0x02
	StatusACal  = 0x04
	StatusOrder = 0x08
)

// ChipID is the value of the STATUS ID nibble fixed by the manufacturer.
const ChipID = 3

// Gain is a PGA setting as written to ADCON.
type Gain byte

const (
	Gain1  Gain = 0x00
	Gain2  Gain = 0x01
	Gain4  Gain = 0x02
	Gain8  Gain = 0x03
	Gain16 Gain = 0x04
	Gain32 Gain = 0x05
	Gain64 Gain = 0x06
)

// ParseGain maps an amplification factor to its PGA setting.
func ParseGain(g int) (Gain, error) {
	switch g {
	case 1:
		return Gain1, nil
	case 2:
		return Gain2, nil
	case 4:
		return Gain4, nil
	case 8:
		return Gain8, nil
	case 16:
		return Gain16, nil
	case 32:
		return Gain32, nil
	case 64:
		return Gain64, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidGain, g)
}

// DataRate is a DRATE register value.
type DataRate byte

// DRATE values for a 7.68MHz master clock, datasheet table 13.
const (
	Rate30000 DataRate = 0xF0
	Rate15000 DataRate = 0xE0
	Rate7500  DataRate = 0xD0
	Rate3750  DataRate = 0xC0
	Rate2000  DataRate = 0xB0
	Rate1000  DataRate = 0xA1
	Rate500   DataRate = 0x92
	Rate100   DataRate = 0x82
	Rate60    DataRate = 0x72
	Rate50    DataRate = 0x63
	Rate30    DataRate = 0x53
	Rate25    DataRate = 0x43
	Rate15    DataRate = 0x33
	Rate10    DataRate = 0x23
	Rate5     DataRate = 0x13
	Rate2_5   DataRate = 0x03
)

var dataRates = map[float64]DataRate{
	30000: Rate30000,
	15000: Rate15000,
	7500:  Rate7500,
	3750:  Rate3750,
	2000:  Rate2000,
	1000:  Rate1000,
	500:   Rate500,
	100:   Rate100,
	60:    Rate60,
	50:    Rate50,
	30:    Rate30,
	25:    Rate25,
	15:    Rate15,
	10:    Rate10,
	5:     Rate5,
	2.5:   Rate2_5,
}

// ParseDataRate maps samples per second to the DRATE value.
func ParseDataRate(sps float64) (DataRate, error) {
	if r, ok := dataRates[sps]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("%w: %g SPS", ErrInvalidDataRate, sps)
}

// SPS returns the samples per second for r, or 0 if r is not a table value.
func (r DataRate) SPS() float64 {
	for sps, v := range dataRates {
		if v == r {
			return sps
		}
	}
	return 0
}

// Channel is an analog input as encoded in a MUX nibble.
type Channel byte

const (
	AIN0   Channel = 0x00
	AIN1   Channel = 0x01
	AIN2   Channel = 0x02
	AIN3   Channel = 0x03
	AIN4   Channel = 0x04
	AIN5   Channel = 0x05
	AIN6   Channel = 0x06
	AIN7   Channel = 0x07
	AINCOM Channel = 0x08
)

func (c Channel) String() string {
	if c == AINCOM {
		return "AINCOM"
	}
	return fmt.Sprintf("AIN%d", byte(c))
}

// ParseChannel validates an input number.
func ParseChannel(ch int) (Channel, error) {
	if ch < 0 || ch > int(AINCOM) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return Channel(ch), nil
}

// MuxValue encodes a single ended selection of ch against AINCOM.
func MuxValue(ch Channel) byte {
	return byte(ch)<<4 | byte(AINCOM)
}
