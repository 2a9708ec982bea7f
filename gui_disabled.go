//go:build !gui

package main

import (
	"context"
	"errors"

	"voxchat/app"
)

func runGUI(context.Context, app.Deps, attachFunc) error {
	return errors.New("built without GUI support (rebuild with -tags gui)")
}
