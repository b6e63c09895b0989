// Package router exposes the Archer feature calls on top of an
// authenticated luci session: LED control, the client list and MAC
// blocking. It carries no protocol logic.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jgrimard/TPLink-APIClient/internal/envelope"
	"github.com/jgrimard/TPLink-APIClient/internal/logging"
	"github.com/jgrimard/TPLink-APIClient/internal/luci"
)

var (
	EndpointLED          = luci.Endpoint{Path: "admin/ledgeneral", Form: "setting"}
	EndpointClients      = luci.Endpoint{Path: "admin/status", Form: "client_status"}
	EndpointBlockDevices = luci.Endpoint{Path: "admin/access_control", Form: "black_devices"}
	EndpointBlockList    = luci.Endpoint{Path: "admin/access_control", Form: "black_list"}
)

// blockHost is the host name the web UI sends when blocking by MAC.
const blockHost = "NOT HOST"

// ErrDeviceNotFound is returned by Unblock for a MAC not on the block list.
var ErrDeviceNotFound = errors.New("device not found in block list")

// Caller is the part of *luci.Session the feature calls need.
type Caller interface {
	Call(ctx context.Context, ep luci.Endpoint, params envelope.Params) (*luci.Response, error)
}

// OperationError is a success=false reply to a feature call.
type OperationError struct {
	Op   string
	Code string
}

func (e *OperationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: router refused the operation", e.Op)
	}
	return fmt.Sprintf("%s: router refused the operation (errorcode %s)", e.Op, e.Code)
}

// LEDMode is a value accepted by SetLED.
type LEDMode string

const (
	LEDOn     LEDMode = "on"
	LEDOff    LEDMode = "off"
	LEDToggle LEDMode = "toggle"
)

// ParseLEDMode accepts on, off or toggle in any case.
func ParseLEDMode(s string) (LEDMode, error) {
	switch m := LEDMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LEDOn, LEDOff, LEDToggle:
		return m, nil
	}
	return "", fmt.Errorf("invalid LED mode %q (want on, off or toggle)", s)
}

// Device is an entry of the block candidate list or the block list.
type Device struct {
	MAC  string `json:"mac"`
	Name string `json:"name,omitempty"`
	IP   string `json:"ip,omitempty"`
	Key  string `json:"key,omitempty"`
}

// Router runs feature calls over one session.
type Router struct {
	caller Caller
	logger *logging.Logger
}

// New creates a Router. A nil logger uses the default.
func New(c Caller, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{caller: c, logger: logger.WithComponent("router")}
}

// do sends one call and turns success=false into an OperationError.
func (r *Router) do(ctx context.Context, ep luci.Endpoint, params envelope.Params) (*luci.Response, error) {
	resp, err := r.caller.Call(ctx, ep, params)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &OperationError{Op: ep.String(), Code: resp.ErrorCode}
	}
	return resp, nil
}

func (r *Router) read(ctx context.Context, ep luci.Endpoint, operation string, v any) error {
	resp, err := r.do(ctx, ep, envelope.NewParams("operation", operation))
	if err != nil {
		return err
	}
	if err := resp.Decode(v); err != nil {
		return fmt.Errorf("%s: unexpected data: %w", ep, err)
	}
	return nil
}

// LEDStatus reports whether the front panel LEDs are on.
func (r *Router) LEDStatus(ctx context.Context) (bool, error) {
	var data struct {
		Enable string `json:"enable"`
	}
	if err := r.read(ctx, EndpointLED, "read", &data); err != nil {
		return false, err
	}
	return data.Enable == "on", nil
}

// SetLED switches the LEDs.
func (r *Router) SetLED(ctx context.Context, mode LEDMode) error {
	if _, err := ParseLEDMode(string(mode)); err != nil {
		return err
	}
	_, err := r.do(ctx, EndpointLED, envelope.NewParams("operation", "write", "led_status", string(mode)))
	if err == nil {
		r.logger.Info("LED mode set", "mode", string(mode))
	}
	return err
}

// Clients returns the raw client_status data. Its layout differs between
// firmware versions.
func (r *Router) Clients(ctx context.Context) (json.RawMessage, error) {
	var data json.RawMessage
	if err := r.read(ctx, EndpointClients, "read", &data); err != nil {
		return nil, err
	}
	return data, nil
}

// BlockCandidates lists devices that can be blocked.
func (r *Router) BlockCandidates(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := r.read(ctx, EndpointBlockDevices, "load", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// BlockList lists blocked devices in device order.
func (r *Router) BlockList(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := r.read(ctx, EndpointBlockList, "load", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Block adds mac to the block list.
func (r *Router) Block(ctx context.Context, mac string) error {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}
	payload := fmt.Sprintf(`[{"mac": %q, "host": %q}]`, norm, blockHost)
	params := envelope.NewParams(
		"operation", "block",
		"key", "key=1",
		"index", "0",
		"data", url.QueryEscape(payload),
	)
	if _, err := r.do(ctx, EndpointBlockDevices, params); err != nil {
		return err
	}
	r.logger.Audit("block", norm, nil)
	return nil
}

// Unblock removes mac from the block list. The device addresses entries by
// position, so the list is read first.
func (r *Router) Unblock(ctx context.Context, mac string) error {
	norm, err := NormalizeMAC(mac)
	if err != nil {
		return err
	}
	list, err := r.BlockList(ctx)
	if err != nil {
		return err
	}

	index := -1
	key := "anything"
	for i, d := range list {
		if m, err := NormalizeMAC(d.MAC); err == nil && m == norm {
			index = i
			if d.Key != "" {
				key = d.Key
			}
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("%s: %w", norm, ErrDeviceNotFound)
	}

	params := envelope.NewParams(
		"key", key,
		"index", strconv.Itoa(index),
		"operation", "remove",
	)
	if _, err := r.do(ctx, EndpointBlockList, params); err != nil {
		return err
	}
	r.logger.Audit("unblock", norm, map[string]any{"index": index})
	return nil
}

// NormalizeMAC formats a 48-bit MAC the way the firmware prints it:
// upper case, dash separated.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil {
		return "", fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid MAC address %q: not 48 bits", mac)
	}
	return strings.ToUpper(strings.ReplaceAll(hw.String(), ":", "-")), nil
}
