package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/chaz8081/struk/internal/ble"
)

// huhPicker is the terminal device chooser.
var huhPicker = ble.PickerFunc(func(ctx context.Context, devices []ble.Device) (ble.Device, error) {
	opts := make([]huh.Option[string], 0, len(devices))
	for _, d := range devices {
		opts = append(opts, huh.NewOption(deviceLabel(d), d.Address))
	}

	var address string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose a printer").
				Options(opts...).
				Value(&address),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) || ctx.Err() != nil {
			return ble.Device{}, ble.ErrDiscoveryCancelled
		}
		return ble.Device{}, err
	}

	for _, d := range devices {
		if d.Address == address {
			return d, nil
		}
	}
	return ble.Device{}, ble.ErrDiscoveryCancelled
})

func deviceLabel(d ble.Device) string {
	name := d.Name
	if name == "" {
		name = "(unnamed)"
	}
	if d.RSSI != 0 {
		return fmt.Sprintf("%s  %s  %d dBm", name, d.Address, d.RSSI)
	}
	return fmt.Sprintf("%s  %s", name, d.Address)
}
