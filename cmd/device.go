package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/jgrimard/TPLink-APIClient/internal/router"
)

// RunLED prints the LED state, or sets it when mode is on, off or toggle.
func RunLED(o *Options, mode string) error {
	var m router.LEDMode
	if mode != "" {
		parsed, err := router.ParseLEDMode(mode)
		if err != nil {
			return err
		}
		m = parsed
	}

	return withRouter(o, func(ctx context.Context, r *router.Router) error {
		if m != "" {
			if err := r.SetLED(ctx, m); err != nil {
				return err
			}
		}
		on, err := r.LEDStatus(ctx)
		if err != nil {
			return err
		}
		state := "off"
		if on {
			state = "on"
		}
		Printer.Fprintf(stdout, "LEDs are %s\n", state)
		return nil
	})
}

// RunClients prints the connected client list as indented JSON.
func RunClients(o *Options) error {
	return withRouter(o, func(ctx context.Context, r *router.Router) error {
		raw, err := r.Clients(ctx)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "    "); err != nil {
			return fmt.Errorf("client list is not valid JSON: %w", err)
		}
		buf.WriteByte('\n')
		_, err = stdout.Write(buf.Bytes())
		return err
	})
}

// RunBlockList prints blocked devices.
func RunBlockList(o *Options) error {
	return withRouter(o, func(ctx context.Context, r *router.Router) error {
		devices, err := r.BlockList(ctx)
		if err != nil {
			return err
		}
		printDevices(devices)
		return nil
	})
}

// RunCandidates prints devices that can be blocked.
func RunCandidates(o *Options) error {
	return withRouter(o, func(ctx context.Context, r *router.Router) error {
		devices, err := r.BlockCandidates(ctx)
		if err != nil {
			return err
		}
		printDevices(devices)
		return nil
	})
}

// RunBlock blocks mac.
func RunBlock(o *Options, mac string) error {
	norm, err := router.NormalizeMAC(mac)
	if err != nil {
		return err
	}
	return withRouter(o, func(ctx context.Context, r *router.Router) error {
		if err := r.Block(ctx, norm); err != nil {
			return err
		}
		Printer.Fprintf(stdout, "Blocked %s\n", norm)
		return nil
	})
}

// RunUnblock unblocks mac.
func RunUnblock(o *Options, mac string) error {
	norm, err := router.NormalizeMAC(mac)
	if err != nil {
		return err
	}
	return withRouter(o, func(ctx context.Context, r *router.Router) error {
		if err := r.Unblock(ctx, norm); err != nil {
			return err
		}
		Printer.Fprintf(stdout, "Unblocked %s\n", norm)
		return nil
	})
}

func printDevices(devices []router.Device) {
	if len(devices) == 0 {
		Printer.Fprintf(stdout, "No devices\n")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MAC\tNAME\tIP")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.MAC, d.Name, d.IP)
	}
	w.Flush()
}
