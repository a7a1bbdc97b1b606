//go:build !linux && !freebsd

package audio

import (
	"fmt"
	"os"
	"runtime"
)

func configureDSP(file *os.File, config Config) error {
	return fmt.Errorf("OSS devices are not supported on %s", runtime.GOOS)
}
