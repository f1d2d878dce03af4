// Package evdev grabs Linux pointer devices so the OS cursor does not move
// while their events are forwarded.
package evdev

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Device is a pointer entry from /proc/bus/input/devices.
type Device struct {
	Name string
	Path string
	// Absolute marks touchpads and tablets reporting ABS_X/ABS_Y.
	Absolute bool
}

const (
	evRel = 2
	evAbs = 3
)

// ParseDevices extracts pointer devices (a mouse handler plus relative or
// absolute axes) from the /proc/bus/input/devices listing.
func ParseDevices(r io.Reader) ([]Device, error) {
	var (
		out      []Device
		name     string
		handlers []string
		evBits   uint64
	)

	flush := func() {
		defer func() { name, handlers, evBits = "", nil, 0 }()
		if evBits&(1<<evRel|1<<evAbs) == 0 {
			return
		}
		var event string
		mouse := false
		for _, h := range handlers {
			switch {
			case strings.HasPrefix(h, "mouse"):
				mouse = true
			case strings.HasPrefix(h, "event"):
				event = h
			}
		}
		if mouse && event != "" {
			out = append(out, Device{
				Name:     name,
				Path:     "/dev/input/" + event,
				Absolute: evBits&(1<<evRel) == 0,
			})
		}
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "N: Name="):
			name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			handlers = strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
		case strings.HasPrefix(line, "B: EV="):
			v, err := strconv.ParseUint(strings.TrimPrefix(line, "B: EV="), 16, 64)
			if err == nil {
				evBits = v
			}
		}
	}
	flush()
	return out, sc.Err()
}
