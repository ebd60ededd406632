// Package resolve parses the textual device name an operator types at
// the candctl CLI ("FnType:Slot:FnEnum", e.g. "preampstream:7:2") into the
// numeric (slot, fn_type, fn_count) triple the core operates on
// (spec.md §1, §6). It is deliberately the only package in this module
// that imports wire.FnType's names for parsing purposes; router and
// candlib never import it, preserving the core/CLI-utility boundary
// spec.md §1 draws.
package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samsamfire/cand/pkg/canderr"
	"github.com/samsamfire/cand/pkg/wire"
)

// fnTypeNames mirrors the wire.FnType registry name-for-name (itself the
// DEV_FN_TYPE enum from original_source/include/DevProtocol.h), so a name
// typed here always resolves to the value a real board sends on the wire.
var fnTypeNames = map[string]uint8{
	"analogin":       uint8(wire.FnTypeAnalogIn),
	"analogout":      uint8(wire.FnTypeAnalogOut),
	"digitalin":      uint8(wire.FnTypeDigitalIn),
	"digitalout":     uint8(wire.FnTypeDigitalOut),
	"preampstream":   uint8(wire.FnTypePreampStream),
	"preampconfig":   uint8(wire.FnTypePreampConfig),
	"rtd":            uint8(wire.FnTypeRTD),
	"heater":         uint8(wire.FnTypeHeaterCtrl),
	"solenoid":       uint8(wire.FnTypeSolenoid),
	"serial":         uint8(wire.FnTypeSerial),
	"epc":            uint8(wire.FnTypeEPC),
	"ltloi":          uint8(wire.FnTypeLTLOI),
	"ffbstatus":      uint8(wire.FnTypeFFBStatus),
	"ffbcommand":     uint8(wire.FnTypeFFBCommand),
	"graphicalloi":   uint8(wire.FnTypeGraphicalLOI),
	"diagnostic":     uint8(wire.FnTypeDiagnostic),
	"fid":            uint8(wire.FnTypeFID),
	"fpd":            uint8(wire.FnTypeFPD),
	"pressure":       uint8(wire.FnTypePressure),
	"ctrl":           uint8(wire.FnTypeCtrl),
	"imb":            uint8(wire.FnTypeIMBComm),
	"fpdg2":          uint8(wire.FnTypeFPDG2),
	"cycleclocksync": uint8(wire.FnTypeCycleClockSync),
	"reboot":         uint8(wire.FnTypeReboot),
	"cap":            uint8(wire.FnTypeCap),
}

// Triple is the resolved (slot, fn_type, fn_count) address, ready to
// hand to candlib.Open.
type Triple struct {
	Slot    uint8
	FnType  uint8
	FnCount uint8
}

// Parse resolves a "FnType:Slot:FnEnum" name into a Triple. FnType may be
// one of the names in the wire.FnType registry (case-insensitive) or a
// bare decimal/hex number; Slot and FnEnum (which becomes FnCount) are
// always numbers. Returns canderr.ErrInvalidArgs on any malformed or
// out-of-range field.
func Parse(name string) (Triple, error) {
	parts := strings.Split(name, ":")
	if len(parts) != 3 {
		return Triple{}, fmt.Errorf("%w: expected FnType:Slot:FnEnum, got %q", canderr.ErrInvalidArgs, name)
	}

	fnType, err := parseFnType(parts[0])
	if err != nil {
		return Triple{}, err
	}
	slot, err := parseUint(parts[1], wire.MaxSlot)
	if err != nil {
		return Triple{}, err
	}
	fnCount, err := parseUint(parts[2], wire.MaxFnCount)
	if err != nil {
		return Triple{}, err
	}
	if fnCount == 0 {
		return Triple{}, fmt.Errorf("%w: FnEnum 0 is reserved", canderr.ErrInvalidArgs)
	}

	return Triple{Slot: slot, FnType: fnType, FnCount: fnCount}, nil
}

func parseFnType(field string) (uint8, error) {
	if v, ok := fnTypeNames[strings.ToLower(field)]; ok {
		return v, nil
	}
	return parseUint(field, wire.MaxFnType)
}

func parseUint(field string, max uint8) (uint8, error) {
	n, err := strconv.ParseUint(field, 0, 8)
	if err != nil || n > uint64(max) {
		return 0, fmt.Errorf("%w: %q is not a valid value in [0,%d]", canderr.ErrInvalidArgs, field, max)
	}
	return uint8(n), nil
}
