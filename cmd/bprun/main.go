// Command bprun loads one of the bundled example behavioral programs
// and drives it to completion, printing the selected-event trace. With
// -feed-addr it also starts engine/feed's WebSocket bridge so another
// process can push external events into the running program.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nmxmxh/bp-runtime/engine/feed"
	"github.com/nmxmxh/bp-runtime/engine/program"
	"github.com/nmxmxh/bp-runtime/engine/runner"
	"github.com/nmxmxh/bp-runtime/examples/breakupon"
	"github.com/nmxmxh/bp-runtime/examples/dynreg"
	"github.com/nmxmxh/bp-runtime/examples/extgate"
	"github.com/nmxmxh/bp-runtime/examples/gettime"
	"github.com/nmxmxh/bp-runtime/examples/hotcold"
	"github.com/nmxmxh/bp-runtime/utils"
)

var scenarios = map[string]func(*program.Program) error{
	"hotcold":   hotcold.Register,
	"extgate":   extgate.Register,
	"dynreg":    dynreg.Register,
	"breakupon": breakupon.Register,
	"gettime":   gettime.Register,
}

func main() {
	var (
		scenario     = flag.String("scenario", "hotcold", "bundled scenario to run: hotcold, extgate, dynreg, breakupon, gettime")
		daemon       = flag.Bool("daemon", false, "run in daemon mode (wait for external events instead of terminating)")
		cycleTimeout = flag.Duration("cycle-timeout", 0, "per-cycle selection timeout (0 disables)")
		feedAddr     = flag.String("feed-addr", "", "if set, serve engine/feed's WebSocket bridge on this address (e.g. :8787)")
	)
	flag.Parse()

	register, ok := scenarios[*scenario]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *scenario)
		os.Exit(2)
	}

	log := utils.DefaultLogger("bprun")

	p := program.New(program.NewConfig(
		program.WithDaemon(*daemon),
		program.WithLogger(log),
	))
	if err := register(p); err != nil {
		log.Fatal("registering scenario", utils.Err(err), utils.String("scenario", *scenario))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *feedAddr != "" {
		bridge := feed.New(p, log.With("feed"))
		go func() {
			if err := bridge.ListenAndServe(*feedAddr, "/feed"); err != nil {
				log.Error("feed bridge stopped", utils.Err(err))
			}
		}()
	}

	r := runner.New(p, nil, log.With("runner"))
	result := r.Run(ctx, *cycleTimeout)

	for i, e := range result.Trace {
		fmt.Printf("%3d: %s\n", i+1, e.String())
	}
	fmt.Printf("exit reason: %s\n", result.Reason)
	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		fmt.Printf("error: %v\n", result.Err)
		os.Exit(1)
	}
}
