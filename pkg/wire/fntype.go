package wire

// FnType names the function-class field of an Address. The core router
// and reliability layer are FnType-agnostic except for the two FFB
// exceptions below (spec.md §9); every other name here exists purely so
// tests, logs, and cmd/candctl can refer to a board class by name
// instead of a bare integer. The numeric values are not this fleet's own
// invention: they are the DEV_FN_TYPE enum a real board sends on the
// wire (original_source/include/DevProtocol.h), so IsFFBCommand and
// IsFFBStatus gate on the numbers that actually appear in frames.
type FnType uint8

const (
	FnTypeAnalogIn       FnType = 1
	FnTypeAnalogOut      FnType = 2
	FnTypeDigitalIn      FnType = 3
	FnTypeDigitalOut     FnType = 4
	FnTypePreampStream   FnType = 5
	FnTypePreampConfig   FnType = 6
	FnTypeRTD            FnType = 7
	FnTypeHeaterCtrl     FnType = 8
	FnTypeSolenoid       FnType = 9
	FnTypeSerial         FnType = 10
	FnTypeEPC            FnType = 11
	FnTypeLTLOI          FnType = 12
	FnTypeFFBStatus      FnType = 13
	FnTypeFFBCommand     FnType = 14
	FnTypeGraphicalLOI   FnType = 15
	FnTypeDiagnostic     FnType = 16
	FnTypeFID            FnType = 17
	FnTypeFPD            FnType = 18
	FnTypePressure       FnType = 19
	FnTypeCtrl           FnType = 20
	FnTypeIMBComm        FnType = 21
	FnTypeFPDG2          FnType = 22
	FnTypeCycleClockSync FnType = 29
	FnTypeReboot         FnType = 30
	FnTypeCap            FnType = 31
)

// IsFFBCommand reports whether fnType is the one class the router never
// acknowledges at the daemon level (spec.md §4.E, §9): the application
// above the core is responsible for acknowledging it instead.
func IsFFBCommand(fnType uint8) bool {
	return FnType(fnType) == FnTypeFFBCommand
}

// IsFFBStatus reports whether fnType is the class whose client-side
// fragmentation requires a 15ms inter-frame delay instead of batching
// all fragments into one send (spec.md §4.F, §9).
func IsFFBStatus(fnType uint8) bool {
	return FnType(fnType) == FnTypeFFBStatus
}

// FFBInterFrameDelayMillis is the wire constraint named in spec.md §9:
// a hard-coded constant, kept as a single named configuration point
// rather than scattered through the fragmentation code.
const FFBInterFrameDelayMillis = 15
