package cliapp

import (
	"fmt"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

// PrintBanner prints the startup banner with the serving namespace and engine.
// nolint
func PrintBanner(namespace, engine string) {
	defer func() {
		fmt.Println("")
	}()

	banner := figure.NewFigure("statusdb", "small", true)
	bannerStr := banner.String()

	maxWidth := 0
	for _, line := range strings.Split(bannerStr, "\n") {
		if len(line) > maxWidth {
			maxWidth = len(line)
		}
	}

	color.New(color.FgGreen, color.Bold).Println(bannerStr)
	centerPrint("One status per account.", maxWidth, color.FgHiBlack)
	centerPrint(fmt.Sprintf("namespace=%s engine=%s", namespace, engine), maxWidth, color.FgHiBlack)
}

func centerPrint(text string, width int, attr color.Attribute) {
	padding := max((width-len(text))/2, 0)
	color.New(attr).Println(strings.Repeat(" ", padding) + text)
}
