package audio

import (
	"fmt"
	"os"
)

// OSSDevice is a character device such as /dev/dsp opened for reading and
// writing. The kernel driver delivers and accepts raw samples in the format
// negotiated at open time.
type OSSDevice struct {
	*os.File
}

// OpenOSS opens path read/write and, when it is a character device, sets the
// sample format, channel count and rate from config
func OpenOSS(config Config) (*OSSDevice, error) {
	file, err := os.OpenFile(config.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", config.Path, err)
	}

	if info.Mode()&os.ModeCharDevice != 0 {
		if err := configureDSP(file, config); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to configure %s: %w", config.Path, err)
		}
	}

	return &OSSDevice{File: file}, nil
}

// Name returns the device path
func (d *OSSDevice) Name() string {
	return d.File.Name()
}
