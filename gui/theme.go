//go:build gui

package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// appTheme is the default theme forced to one variant, with the text
// size taken from the config.
type appTheme struct {
	light    bool
	textSize float32
}

func (t *appTheme) variant() fyne.ThemeVariant {
	if t.light {
		return theme.VariantLight
	}
	return theme.VariantDark
}

func (t *appTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	if !t.light {
		switch name {
		case theme.ColorNameBackground:
			return color.RGBA{18, 18, 18, 255}
		case theme.ColorNameForeground:
			return color.RGBA{200, 200, 200, 255}
		}
	}
	return theme.DefaultTheme().Color(name, t.variant())
}

func (t *appTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *appTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *appTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNameText && t.textSize > 0 {
		return t.textSize
	}
	return theme.DefaultTheme().Size(name)
}
