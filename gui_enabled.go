//go:build gui

package main

import (
	"context"

	"voxchat/app"
	"voxchat/gui"
)

func runGUI(ctx context.Context, deps app.Deps, attach attachFunc) error {
	return gui.Run(ctx, deps, attach)
}
