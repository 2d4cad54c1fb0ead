package report

import "peak_analyzer/internal/analysis"

// Style is how a rating is presented to people.
type Style struct {
	Label  string `json:"label"`
	Symbol string `json:"symbol"`
	// Color is a CSS hex color for web clients.
	Color string `json:"color"`
	ansi  string
}

const ansiReset = "\033[0m"

var styles = map[analysis.Rating]Style{
	analysis.VeryFavorable: {Label: "Very favorable", Symbol: "++", Color: "#1b873f", ansi: "\033[1;32m"},
	analysis.Favorable:     {Label: "Favorable", Symbol: "+", Color: "#57ab5a", ansi: "\033[32m"},
	analysis.Possible:      {Label: "Possible", Symbol: "~", Color: "#c69026", ansi: "\033[33m"},
	analysis.Unfavorable:   {Label: "Unfavorable", Symbol: "-", Color: "#c93c37", ansi: "\033[31m"},
}

// StyleFor returns the presentation of r. Unknown ratings get a neutral style.
func StyleFor(r analysis.Rating) Style {
	if s, ok := styles[r]; ok {
		return s
	}
	return Style{Label: r.String(), Symbol: "?", Color: "#808080"}
}

// Paint wraps text in the rating's terminal color.
func (s Style) Paint(text string) string {
	if s.ansi == "" {
		return text
	}
	return s.ansi + text + ansiReset
}
