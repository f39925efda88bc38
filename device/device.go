package device

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/notargets/gocca"
)

// Mode properties understood by OCCA, keyed by the short names used in
// configuration files
var modeProps = map[string]string{
	"cuda":   `{"mode": "CUDA", "device_id": 0}`,
	"openmp": `{"mode": "OpenMP"}`,
	"serial": `{"mode": "Serial"}`,
}

// DefaultModes lists the backends tried when none are configured,
// preferring parallel backends
var DefaultModes = []string{"openmp", "cuda", "serial"}

// Device wraps an OCCA device
type Device struct {
	occa *gocca.OCCADevice
}

// NewDevice creates the first OCCA device that can be opened from modes.
// A mode is either a short name (cuda, openmp, serial) or raw OCCA JSON
// properties.
func NewDevice(modes ...string) (*Device, error) {
	if len(modes) == 0 {
		modes = DefaultModes
	}
	var errs []string
	for _, mode := range modes {
		props, ok := modeProps[strings.ToLower(mode)]
		if !ok {
			props = mode
		}
		d, err := gocca.NewDevice(props)
		if err == nil {
			slog.Debug("created OCCA device", "mode", d.Mode())
			return &Device{occa: d}, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", mode, err))
	}
	return nil, fmt.Errorf("no OCCA device available (%s)", strings.Join(errs, "; "))
}

// Mode returns the OCCA backend name
func (d *Device) Mode() string { return d.occa.Mode() }

// Free releases the device
func (d *Device) Free() { d.occa.Free() }

func (d *Device) buildKernel(source, name string) (*gocca.OCCAKernel, error) {
	var (
		kernel *gocca.OCCAKernel
		err    error
	)
	if d.Mode() == "OpenMP" {
		// OpenMP does not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = d.occa.BuildKernelFromString(source, name, props)
	} else {
		kernel, err = d.occa.BuildKernelFromString(source, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", name)
	}
	return kernel, nil
}
