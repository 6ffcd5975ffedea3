package snapshot

import (
	"fmt"
	"strconv"

	"github.com/nerrad567/czone-gateway/internal/czone"
)

// sections are the snapshot sections merged into LiveDevices.
var sections = []string{
	czone.SectionCircuits,
	czone.SectionTanks,
	czone.SectionEngines,
	czone.SectionAC,
	czone.SectionDC,
	czone.SectionHVAC,
	czone.SectionInverterChargers,
	czone.SectionGNSS,
	czone.SectionBinaryLogicState,
}

// Extract maps a snapshot to LiveDevices ids and their channel values.
//
// AC meters report one sub-map per line; those are flattened to
// "{channel}.{line}". Entries whose instance is not a number are skipped.
func Extract(snap czone.Snapshot) map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, section := range sections {
		kind := czone.SectionKind(section)
		for key, values := range snap[section] {
			n, err := strconv.ParseUint(key, 10, 32)
			if err != nil {
				continue
			}
			id := czone.LiveID(kind, uint32(n))
			if section == czone.SectionAC {
				out[id] = flattenLines(values)
			} else {
				out[id] = values
			}
		}
	}
	return out
}

func flattenLines(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for channel, v := range values {
		lines, ok := v.(map[string]any)
		if !ok {
			out[channel] = v
			continue
		}
		for line, lv := range lines {
			out[fmt.Sprintf("%s.%s", channel, line)] = lv
		}
	}
	return out
}
