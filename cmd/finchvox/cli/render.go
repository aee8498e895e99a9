// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/finchvox/finchvox/lib/storage"
)

const (
	accentColor  = lipgloss.Color("39")
	faintColor   = lipgloss.Color("245")
	dangerColor  = lipgloss.Color("196")
	warningColor = lipgloss.Color("214")
)

// Renderer styles terminal output. Writers that are not terminals get
// plain text.
type Renderer struct {
	styles *lipgloss.Renderer
	plain  bool
}

func NewRenderer(output io.Writer) *Renderer {
	styles := lipgloss.NewRenderer(output)
	plain := !IsTerminal(output)
	if plain {
		styles.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{styles: styles, plain: plain}
}

func (r *Renderer) finish(text string) string {
	if r.plain {
		return ansi.Strip(text)
	}
	return text
}

// BannerField is one labelled line of the startup banner. Extra lines
// continue the value under the same label.
type BannerField struct {
	Label string
	Value string
	Extra []string
}

// Banner renders the startup block: a title and aligned fields.
func (r *Renderer) Banner(title string, fields []BannerField) string {
	titleStyle := r.styles.NewStyle().Bold(true).Foreground(accentColor)
	labelStyle := r.styles.NewStyle().Foreground(faintColor)

	labelWidth := 0
	for _, field := range fields {
		labelWidth = max(labelWidth, ansi.StringWidth(field.Label))
	}
	indent := strings.Repeat(" ", labelWidth+2)

	var body strings.Builder
	body.WriteString(titleStyle.Render(title))
	for _, field := range fields {
		padding := strings.Repeat(" ", labelWidth-ansi.StringWidth(field.Label)+2)
		fmt.Fprintf(&body, "\n%s%s%s", labelStyle.Render(field.Label), padding, field.Value)
		for _, extra := range field.Extra {
			fmt.Fprintf(&body, "\n%s%s", indent, extra)
		}
	}

	box := r.styles.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1)
	return r.finish(box.Render(body.String()))
}

// Troubleshooting renders a storage startup failure as a bordered
// block of causes and numbered remediation steps.
func (r *Renderer) Troubleshooting(diagnostic *storage.DiagnosticError) string {
	headingStyle := r.styles.NewStyle().Bold(true).Foreground(dangerColor)
	sectionStyle := r.styles.NewStyle().Bold(true).Foreground(warningColor)
	detailStyle := r.styles.NewStyle().Foreground(faintColor)

	var body strings.Builder
	body.WriteString(headingStyle.Render(diagnostic.Summary))

	if len(diagnostic.Causes) > 0 {
		body.WriteString("\n\n" + sectionStyle.Render("Probable causes"))
		for _, cause := range diagnostic.Causes {
			body.WriteString("\n  • " + cause)
		}
	}
	if len(diagnostic.Remediation) > 0 {
		body.WriteString("\n\n" + sectionStyle.Render("How to fix"))
		for i, step := range diagnostic.Remediation {
			fmt.Fprintf(&body, "\n  %d. %s", i+1, step)
		}
	}
	if diagnostic.Err != nil {
		body.WriteString("\n\n" + detailStyle.Render("Error: "+diagnostic.Err.Error()))
	}

	box := r.styles.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dangerColor).
		Padding(0, 1).
		MaxWidth(120)
	return r.finish(box.Render(body.String()))
}
