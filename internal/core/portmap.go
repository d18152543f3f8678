package core

import "strconv"

// PortmapVersion2 is the only portmap version decoded.
const PortmapVersion2 uint32 = 2

// Portmap version 2 procedures.
const (
	PortmapNull    uint32 = 0
	PortmapSet     uint32 = 1
	PortmapUnset   uint32 = 2
	PortmapGetPort uint32 = 3
	PortmapDump    uint32 = 4
	PortmapCallIt  uint32 = 5
)

var portmapProcNames = []string{
	"PMAPPROC_NULL", "PMAPPROC_SET", "PMAPPROC_UNSET",
	"PMAPPROC_GETPORT", "PMAPPROC_DUMP", "PMAPPROC_CALLIT",
}

// PortmapProcName returns the name of a portmap procedure.
func PortmapProcName(proc uint32) string {
	if int(proc) < len(portmapProcNames) {
		return portmapProcNames[proc]
	}
	return "pmapproc(" + strconv.FormatUint(uint64(proc), 10) + ")"
}
