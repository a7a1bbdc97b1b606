//go:build linux || freebsd

package audio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OSS ioctl requests and formats from soundcard.h
const (
	sndctlDSPSpeed    = 0xc0045002
	sndctlDSPSetFmt   = 0xc0045005
	sndctlDSPChannels = 0xc0045006

	afmtU8    = 0x00000008
	afmtS16LE = 0x00000010
)

func configureDSP(file *os.File, config Config) error {
	format := afmtU8
	if config.Format == FormatS16LE {
		format = afmtS16LE
	}

	fd := int(file.Fd())
	if err := unix.IoctlSetPointerInt(fd, sndctlDSPSetFmt, format); err != nil {
		return fmt.Errorf("format %s: %w", config.Format, err)
	}
	if err := unix.IoctlSetPointerInt(fd, sndctlDSPChannels, config.Channels); err != nil {
		return fmt.Errorf("%d channels: %w", config.Channels, err)
	}
	if err := unix.IoctlSetPointerInt(fd, sndctlDSPSpeed, config.SampleRate); err != nil {
		return fmt.Errorf("rate %d: %w", config.SampleRate, err)
	}
	return nil
}
