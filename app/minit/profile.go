package minit

import (
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"golang.org/x/xerrors"

	logging "github.com/memoio/go-mefs-pre/lib/log"
)

var logger = logging.Logger("minit")

const (
	EnvEnableProfiling = "PRE_PROF"
	cpuProfile         = "pre.cpuprof"
	heapProfile        = "pre.memprof"

	heapInterval = 30 * time.Second
)

// ProfileIfEnabled writes cpu and heap profiles into dir while PRE_PROF is
// set. The returned func stops profiling and is never nil.
func ProfileIfEnabled(dir string) (func(), error) {
	if os.Getenv(EnvEnableProfiling) == "" {
		return func() {}, nil
	}

	cpu, err := os.Create(filepath.Join(dir, cpuProfile))
	if err != nil {
		return nil, xerrors.Errorf("cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpu); err != nil {
		cpu.Close()
		return nil, xerrors.Errorf("cpu profile: %w", err)
	}
	logger.Infof("profiling into %s", dir)

	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(heapInterval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				if err := writeHeapProfile(dir); err != nil {
					logger.Warn("write heap profile: ", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		pprof.StopCPUProfile()
		if err := cpu.Close(); err != nil {
			logger.Warn("close cpu profile: ", err)
		}
		if err := writeHeapProfile(dir); err != nil {
			logger.Warn("write heap profile: ", err)
		}
	}, nil
}

func writeHeapProfile(dir string) error {
	f, err := os.Create(filepath.Join(dir, heapProfile))
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}
