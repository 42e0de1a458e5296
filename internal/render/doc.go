// Package render prints the support conversation to a terminal.
//
// Message bodies from agents may contain markdown; PlainText flattens them
// with goldmark so the transcript stays readable without a markdown viewer.
// Colours come from fatih/color and honour NO_COLOR unless forced with
// WithColor.
package render
