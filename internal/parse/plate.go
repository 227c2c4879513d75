package parse

import "strings"

const platePrefix = "plate:"

// ExtractPlate returns the plate identifier carried by a raw scan payload.
// Only the first line is considered; a leading "Plate:" label (any case) is
// dropped. The result is empty when the payload carries no identifier.
func ExtractPlate(raw string) string {
	line := raw
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	if len(line) >= len(platePrefix) && strings.EqualFold(line[:len(platePrefix)], platePrefix) {
		line = strings.TrimSpace(line[len(platePrefix):])
	}
	return line
}

// IsContinuation reports whether a scanned line is the validity line that
// follows the plate in a registration code.
func IsContinuation(line string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "valid until:")
}
