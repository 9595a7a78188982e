package minit

import (
	"runtime"

	"github.com/memoio/go-mefs-pre/build"
)

func PrintVersion() {
	logger.Infof("PRE version: %s", build.UserVersion())
	logger.Infof("System version: %s/%s", runtime.GOARCH, runtime.GOOS)
	logger.Infof("Golang version: %s", runtime.Version())
}
