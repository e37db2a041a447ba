// Package profiling starts and stops the runtime profilers selected on the command line.
package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/felixge/fgprof"
	"go.uber.org/multierr"
)

// StartProfilers starts the profilers whose output path is not empty.
// The returned function stops them, writes the memory profile, and closes every file.
// If a profiler fails to start, the ones already started are stopped.
func StartProfilers(cpuProfilePath, memProfilePath, tracePath, fgprofPath string) (stop func() error, err error) {
	var stops []func() error
	stopAll := func() (err error) {
		// reverse start order
		for i := len(stops) - 1; i >= 0; i-- {
			err = multierr.Append(err, stops[i]())
		}
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, stopAll())
		}
	}()

	if cpuProfilePath != "" {
		f, err := os.Create(cpuProfilePath)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return nil, multierr.Append(err, f.Close())
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return f.Close()
		})
	}

	if fgprofPath != "" {
		f, err := os.Create(fgprofPath)
		if err != nil {
			return nil, err
		}
		fgprofStop := fgprof.Start(f, fgprof.FormatPprof)
		stops = append(stops, func() error {
			return multierr.Append(fgprofStop(), f.Close())
		})
	}

	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			return nil, multierr.Append(err, f.Close())
		}
		stops = append(stops, func() error {
			trace.Stop()
			return f.Close()
		})
	}

	if memProfilePath != "" {
		// runs first on stop, before the other profilers are torn down
		stops = append(stops, func() error {
			return writeHeapProfile(memProfilePath)
		})
	}

	return stopAll, nil
}

func writeHeapProfile(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	runtime.GC() // get up-to-date statistics
	return pprof.WriteHeapProfile(f)
}
