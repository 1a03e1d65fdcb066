// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/antimetal/kstat/pkg/kstat"
	"github.com/antimetal/kstat/pkg/kstat/procfs"
)

var (
	module   string
	instance int
	name     string
	class    string
	interval time.Duration
	count    int
	jsonOut  bool
	verbose  bool
	hostProc string
)

func init() {
	flag.StringVar(&module, "module", "", "Only read statistics from this module")
	flag.IntVar(&instance, "instance", -1, "Only read statistics with this instance number (-1 for any)")
	flag.StringVar(&name, "name", "", "Only read statistics with this name")
	flag.StringVar(&class, "class", "", "Only read statistics in this class")
	flag.DurationVar(&interval, "interval", 0, "Interval between reads (0 reads once)")
	flag.IntVar(&count, "count", 0, "Number of reads when -interval is set (0 runs until interrupted)")
	flag.BoolVar(&jsonOut, "json", false, "Print records as JSON lines")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&hostProc, "host-proc", "/proc", "Path to the host proc filesystem")
}

func main() {
	flag.Parse()

	var logger logr.Logger
	if verbose {
		zapLog, _ := zap.NewDevelopment()
		logger = zapr.NewLogger(zapLog)
	} else {
		logger = logr.Discard()
	}

	config := procfs.DefaultConfig()
	config.HostProcPath = hostProc
	facility, err := procfs.Open(logger, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening statistics facility: %v\n", err)
		os.Exit(1)
	}

	reader, err := kstat.Open(facility, kstat.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening reader: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	filter := buildFilter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	encoder := json.NewEncoder(os.Stdout)
	reads := 0
	for {
		records, err := reader.ReadAll(filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading statistics: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Fprintf(os.Stderr, "No statistics matched the filter\n")
			os.Exit(1)
		}

		for i := range records {
			printRecord(encoder, &records[i])
		}

		reads++
		if interval == 0 || (count > 0 && reads >= count) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func buildFilter() *kstat.Filter {
	filter := &kstat.Filter{}
	if module != "" {
		filter.Module = &module
	}
	if instance >= 0 {
		i := int32(instance)
		filter.Instance = &i
	}
	if name != "" {
		filter.Name = &name
	}
	if class != "" {
		filter.Class = &class
	}
	return filter
}

func printRecord(encoder *json.Encoder, rec *kstat.DecodedRecord) {
	if jsonOut {
		if err := encoder.Encode(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
		}
		return
	}

	fmt.Printf("%s:%d:%s (%s) snaptime=%d\n", rec.Module, rec.Instance, rec.Name, rec.Class, rec.Snaptime)
	switch rec.Kind {
	case kstat.KindNamed:
		for _, nv := range rec.Named {
			switch nv.Type {
			case kstat.NamedTypeInt32, kstat.NamedTypeInt64:
				fmt.Printf("\t%s\t%d\n", nv.Name, nv.IntVal)
			case kstat.NamedTypeUint32, kstat.NamedTypeUint64:
				fmt.Printf("\t%s\t%d\n", nv.Name, nv.UintVal)
			default:
				fmt.Printf("\t%s\t%s\n", nv.Name, nv.StringVal)
			}
		}
	case kstat.KindIO:
		io := rec.IO
		fmt.Printf("\tnread\t%d\n\tnwritten\t%d\n\treads\t%d\n\twrites\t%d\n",
			io.Nread, io.Nwritten, io.Reads, io.Writes)
		fmt.Printf("\trtime\t%d\n\twtime\t%d\n\twlentime\t%d\n",
			io.Rtime, io.Wtime, io.Wlentime)
	case kstat.KindInterrupt:
		intr := rec.Interrupt
		fmt.Printf("\thard\t%d\n\tsoft\t%d\n\twatchdog\t%d\n\tspurious\t%d\n\tmultiple\t%d\n",
			intr.Hard, intr.Soft, intr.Watchdog, intr.Spurious, intr.Multiple)
	case kstat.KindTimer:
		t := rec.Timer
		fmt.Printf("\tname\t%s\n\tnum_events\t%d\n\telapsed_time\t%d\n",
			t.Name, t.NumEvents, t.ElapsedTime)
	}
}
