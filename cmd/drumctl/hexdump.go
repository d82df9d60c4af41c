// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const bytesPerLine = 16

var (
	offsetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	zeroStyle   = lipgloss.NewStyle().Faint(true)
	asciiStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// hexdump writes data in the canonical offset, hex bytes, ASCII layout.
// base is the disk address of data[0]. With styled, offsets, zero
// bytes, and the ASCII column are colored.
func hexdump(w io.Writer, base int64, data []byte, styled bool) error {
	render := func(style lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return style.Render(text)
	}

	buffered := bufio.NewWriter(w)
	for start := 0; start < len(data); start += bytesPerLine {
		line := data[start:min(start+bytesPerLine, len(data))]

		var builder strings.Builder
		builder.WriteString(render(offsetStyle, fmt.Sprintf("%08x", base+int64(start))))
		builder.WriteString(" ")
		for i := range bytesPerLine {
			if i == bytesPerLine/2 {
				builder.WriteString(" ")
			}
			if i >= len(line) {
				builder.WriteString("   ")
				continue
			}
			text := fmt.Sprintf(" %02x", line[i])
			if line[i] == 0 {
				text = render(zeroStyle, text)
			}
			builder.WriteString(text)
		}

		ascii := make([]byte, len(line))
		for i, value := range line {
			if value >= 0x20 && value < 0x7f {
				ascii[i] = value
			} else {
				ascii[i] = '.'
			}
		}
		builder.WriteString("  |")
		builder.WriteString(render(asciiStyle, string(ascii)))
		builder.WriteString("|\n")

		if _, err := buffered.WriteString(builder.String()); err != nil {
			return err
		}
	}
	return buffered.Flush()
}
