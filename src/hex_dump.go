package chatfx

import (
	"fmt"
	"strings"
)

// Offset, up to 16 bytes in hex, then the same bytes as text.
func hex_dump(p []byte) string {
	var sb strings.Builder
	var offset = 0

	for len(p) > 0 {
		var n = min(len(p), 16)

		fmt.Fprintf(&sb, "  %03x: ", offset)

		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, " %02x", p[i])
		}

		for i := n; i < 16; i++ {
			sb.WriteString("   ")
		}

		sb.WriteString("  ")

		for i := 0; i < n; i++ {
			if p[i] >= 0x20 && p[i] <= 0x7E {
				sb.WriteByte(p[i])
			} else {
				sb.WriteByte('.')
			}
		}

		sb.WriteByte('\n')

		p = p[n:]
		offset += n
	}

	return sb.String()
}
