package render

import "strings"

const (
	sourceFilename = "file.tex"
	dviFilename    = "file.dvi"
	svgFilename    = "file.svg"
)

const documentPreamble = `\documentclass[12pt]{article}
\usepackage{amsmath}
\usepackage{amssymb}
\usepackage{amsfonts}
\usepackage{xcolor}
\usepackage{siunitx}
\usepackage[utf8]{inputenc}
\thispagestyle{empty}
\begin{document}
`

const documentEnd = `\end{document}
`

// Wrap embeds markup, trimmed, into the fixed standalone document. The
// markup is inserted verbatim; malformed input surfaces as a compile
// failure.
func Wrap(markup string) string {
	var b strings.Builder
	body := strings.TrimSpace(markup)
	b.Grow(len(documentPreamble) + len(body) + 1 + len(documentEnd))
	b.WriteString(documentPreamble)
	b.WriteString(body)
	b.WriteByte('\n')
	b.WriteString(documentEnd)
	return b.String()
}
