// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Printer writes command results as text or JSON.
type Printer struct {
	format string
	w      io.Writer
}

// NewPrinter returns a Printer. Unknown formats fall back to text.
func NewPrinter(format string, w io.Writer) *Printer {
	if format != FormatJSON {
		format = FormatText
	}
	return &Printer{format: format, w: w}
}

// Print writes v as indented JSON, or calls text to render it.
func (p *Printer) Print(v any, text func(w io.Writer)) error {
	if p.format == FormatJSON {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)
	return nil
}

// PrintError reports err in the selected format.
func (p *Printer) PrintError(err error) error {
	return p.Print(map[string]string{"error": err.Error()}, func(w io.Writer) {
		fmt.Fprintf(w, "Error: %v\n", err)
	})
}
