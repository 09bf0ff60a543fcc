package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{`  ____            _             `, "#34d399"},
	{` |  _ \ __ _ _ __| | ___ _   _  `, "#2dd4bf"},
	{` | |_) / _' | '__| |/ _ \ | | | `, "#22d3ee"},
	{` |  __/ (_| | |  | |  __/ |_| | `, "#38bdf8"},
	{` |_|   \__,_|_|  |_|\___|\__, | `, "#60a5fa"},
	{`                         |___/  `, "#818cf8"},
}

// PrintBanner writes the Parley banner, colored when w is a capable terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Faint styles a system line for w.
func Faint(w io.Writer, s string) string {
	return termenv.NewOutput(w).String(s).Faint().String()
}
