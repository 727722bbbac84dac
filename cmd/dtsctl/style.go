package main

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color constants and the regex-driven help colorizer below are
// reimplemented against lipgloss/termenv directly: the teacher's own
// colorizedHelpFunc delegates to an internal/ui terminal-styling package
// (ui.RenderAccent, ui.RenderCommand, ui.RenderMuted) that is not present
// in the retrieved pack, so only the function shapes and the
// regex-driven, semantically-scoped coloring approach carry over.
var (
	colorAccent = lipgloss.Color("75")  // layer/deterministic cues
	colorWarn   = lipgloss.Color("178") // probabilistic/chaotic cues
	colorMuted  = lipgloss.Color("243")
)

// plainOutput is true when stdout's color profile can't render ANSI
// colors at all (e.g. piped to a file), in which case every render*
// helper below returns its input unstyled rather than emitting escape
// codes a downstream consumer would have to strip.
var plainOutput = termenv.ColorProfile() == termenv.Ascii

func renderAccent(s string) string {
	if plainOutput {
		return s
	}
	return lipgloss.NewStyle().Foreground(colorAccent).Render(s)
}
func renderWarn(s string) string {
	if plainOutput {
		return s
	}
	return lipgloss.NewStyle().Foreground(colorWarn).Bold(true).Render(s)
}

func renderMuted(s string) string {
	if plainOutput {
		return s
	}
	return lipgloss.NewStyle().Foreground(colorMuted).Render(s)
}

func renderCommand(s string) string {
	if plainOutput {
		return s
	}
	return lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render(s)
}

var (
	groupHeaderRE   = regexp.MustCompile(`(?m)^([A-Z][A-Za-z &]+:)\s*$`)
	sectionHeaderRE = regexp.MustCompile(`(?m)^(Examples|Flags|Usage|Global Flags|Aliases|Available Commands):`)
	cmdLineRE       = regexp.MustCompile(`(?m)^(  )([a-z][a-z0-9]*(?:-[a-z0-9]+)*)(\s{2,})(.*)$`)
	flagLineRE      = regexp.MustCompile(`(?m)^(\s+)(-\w,\s+--[\w-]+|--[\w-]+)(\s+)(string|int|duration|bool)?(\s*.*)$`)
)

// colorizeHelpOutput applies semantic coloring to cobra's rendered help
// text: group/section headers get the accent color, command and flag
// names get bold accent, and flag type annotations get muted styling.
func colorizeHelpOutput(help string) string {
	result := groupHeaderRE.ReplaceAllStringFunc(help, func(m string) string {
		return renderAccent(strings.TrimSpace(m))
	})
	result = sectionHeaderRE.ReplaceAllStringFunc(result, renderAccent)
	result = cmdLineRE.ReplaceAllStringFunc(result, func(m string) string {
		parts := cmdLineRE.FindStringSubmatch(m)
		if len(parts) != 5 {
			return m
		}
		return parts[1] + renderCommand(parts[2]) + parts[3] + parts[4]
	})
	result = flagLineRE.ReplaceAllStringFunc(result, func(m string) string {
		parts := flagLineRE.FindStringSubmatch(m)
		if len(parts) < 6 {
			return m
		}
		indent, flags, spacing, typ, desc := parts[1], parts[2], parts[3], parts[4], parts[5]
		if typ != "" {
			return indent + renderCommand(flags) + spacing + renderMuted(typ) + desc
		}
		return indent + renderCommand(flags) + spacing + desc
	})
	return result
}
