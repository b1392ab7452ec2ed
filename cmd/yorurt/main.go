// Command yorurt runs the built-in Yoru sample programs on the runtime heap.
// It exists to exercise the collector end to end and to inspect what it does.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"gopkg.in/yaml.v2"

	"github.com/yoru-lang/yoru-runtime/runtime"
	"github.com/yoru-lang/yoru-runtime/runtime/debug"
	"github.com/yoru-lang/yoru-runtime/runtime/metrics"
)

const configFileOption = "config"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, runs the selected program and returns the exit status.
// heapOpts are passed on to the heap.
func run(args []string, stdout, stderr io.Writer, heapOpts ...runtime.Option) int {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(stderr))
	logger = log.With(logger, "caller", log.DefaultCaller)

	var (
		cfg         = runtime.DefaultConfig()
		configFile  string
		programName string
		listOnly    bool
		statsFile   string
		dumpFile    string
		showMetrics bool
	)

	fs := flag.NewFlagSet("yorurt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&configFile, configFileOption, "", "YAML or TOML file with the gc settings.")
	fs.StringVar(&programName, "program", "", "Program to run. See -list.")
	fs.BoolVar(&listOnly, "list", false, "List the available programs and exit.")
	fs.StringVar(&statsFile, "stats-file", "", "Append the final statistics of the run to this YAML file.")
	fs.StringVar(&dumpFile, "dump-heap", "", "Write a CBOR heap dump to this file when the program returns.")
	fs.BoolVar(&showMetrics, "metrics", false, "Print the heap metrics in Prometheus text format when the program returns.")

	// This sets default values from flags to the config.
	// It needs to be called before parsing the config file!
	cfg.RegisterFlags(fs)

	if configFile = parseConfigFileParameter(args); configFile != "" {
		if err := runtime.LoadConfigFile(configFile, &cfg); err != nil {
			level.Error(logger).Log("msg", "error loading config", "file", configFile, "err", err)
			return 1
		}
	}
	if err := runtime.ConfigFromEnv(&cfg, os.Getenv); err != nil {
		level.Error(logger).Log("msg", "error reading environment", "err", err)
		return 1
	}

	// Command-line flags override the config file and the environment.
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if listOnly {
		listPrograms(stdout)
		return 0
	}
	if programName == "" && fs.NArg() > 0 {
		programName = fs.Arg(0)
	}
	prog, ok := programs[programName]
	if programName != "" && !ok {
		level.Error(logger).Log("msg", "unknown program", "program", programName)
		return 2
	}

	var heap *runtime.Heap
	var entry func(h *runtime.Heap)
	if programName != "" {
		entry = func(h *runtime.Heap) {
			heap = h
			prog.main(h)
			if dumpFile != "" {
				if err := writeHeapDump(h, dumpFile); err != nil {
					level.Error(logger).Log("msg", "error writing heap dump", "err", err)
				}
			}
			// Sample before teardown releases the heap's memory.
			if showMetrics {
				if err := writeMetrics(stdout, h); err != nil {
					level.Error(logger).Log("msg", "error writing metrics", "err", err)
				}
			}
		}
	}

	status, err := runtime.Run(cfg, entry, heapOpts...)
	if err != nil {
		level.Error(logger).Log("msg", "error running program", "program", programName, "err", err)
		return status
	}
	if heap == nil {
		return status
	}

	if statsFile != "" {
		if err := appendStats(statsFile, programName, heap, status); err != nil {
			level.Error(logger).Log("msg", "error writing stats", "err", err)
		}
	}
	return status
}

// Parse the -config option via a separate flag set, so that unknown flags or
// bad values are only reported once, by the main parse.
func parseConfigFileParameter(args []string) string {
	var configFile = ""
	fs := flag.NewFlagSet("yorurt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, configFileOption, "", "") // usage not used in this function.

	// Parsing stops on the first error, e.g. an unknown flag, so retry with
	// the remaining arguments until the option is found or none are left.
	for len(args) > 0 {
		_ = fs.Parse(args)
		if configFile != "" {
			break
		}
		args = args[1:]
	}
	return configFile
}

func listPrograms(w io.Writer) {
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-8s %s\n", name, programs[name].description)
	}
}

func writeHeapDump(h *runtime.Heap, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create heap dump")
	}
	if err := debug.WriteHeapDump(h, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// statsRecord is one YAML document of the stats file.
type statsRecord struct {
	Program string        `yaml:"program"`
	Heap    string        `yaml:"heap"`
	Status  int           `yaml:"status"`
	Stats   runtime.Stats `yaml:"stats"`
}

// appendStats adds the statistics of a finished run to path. Concurrent runs
// may share the file; a lock file next to it keeps their records whole.
func appendStats(path, program string, h *runtime.Heap, status int) error {
	out, err := yaml.Marshal(statsRecord{
		Program: program,
		Heap:    h.ID(),
		Status:  status,
		Stats:   h.ReadStats(),
	})
	if err != nil {
		return errors.Wrap(err, "encode stats")
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrap(err, "lock stats file")
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open stats file")
	}
	if _, err := f.Write(append([]byte("---\n"), out...)); err != nil {
		f.Close()
		return errors.Wrap(err, "write stats file")
	}
	return f.Close()
}

func writeMetrics(w io.Writer, h *runtime.Heap) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(h)); err != nil {
		return err
	}
	families, err := reg.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrap(err, "write metrics")
		}
	}
	return nil
}
