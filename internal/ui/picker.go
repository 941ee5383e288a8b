package ui

import (
	"errors"

	"github.com/charmbracelet/huh"

	"github.com/genba/labjackgo/internal/device"
)

// ErrNoDevices is returned by PickDevice for an empty list.
var ErrNoDevices = errors.New("no devices to choose from")

func buildPickForm(ids []device.Identity, choice *int) *huh.Form {
	opts := make([]huh.Option[int], 0, len(ids))
	for i, id := range ids {
		opts = append(opts, huh.NewOption(DeviceLabel(id), i))
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Device").
				Description("Several devices matched. Choose one.").
				Key("device").
				Options(opts...).
				Value(choice),
		),
	)
}

// PickDevice prompts for one of ids and returns its index. A single
// identity is returned without prompting.
func PickDevice(ids []device.Identity) (int, error) {
	switch len(ids) {
	case 0:
		return -1, ErrNoDevices
	case 1:
		return 0, nil
	}
	choice := 0
	if err := buildPickForm(ids, &choice).Run(); err != nil {
		return -1, err
	}
	return choice, nil
}
