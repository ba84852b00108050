package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nkarpov/ls8/pkg/console"
	"github.com/nkarpov/ls8/pkg/loader"
	"github.com/nkarpov/ls8/pkg/ls8"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ls8",
		Short: "LS-8 virtual machine — run and inspect .ls8 programs",
	}

	// run command
	var trace bool
	var maxSteps int
	var keyboard bool
	var timer bool

	runCmd := &cobra.Command{
		Use:   "run [program.ls8]",
		Short: "Load a program and execute it until HLT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := loader.ParseFile(args[0])
			if err != nil {
				return err
			}

			m := ls8.New(os.Stdout)
			if err := m.Load(image); err != nil {
				return err
			}

			return runMachine(m, runOptions{
				trace:    trace,
				maxSteps: maxSteps,
				keyboard: keyboard,
				timer:    timer,
			})
		},
	}
	runCmd.Flags().BoolVar(&trace, "trace", false, "Print each executed instruction to stderr")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Stop after N instructions (0 = unlimited)")
	runCmd.Flags().BoolVar(&keyboard, "keyboard", false, "Attach the raw-stdin keyboard interrupt source (I1)")
	runCmd.Flags().BoolVar(&timer, "timer", false, "Attach the 1s timer interrupt source (I0)")

	// disasm command
	disasmCmd := &cobra.Command{
		Use:   "disasm [program.ls8]",
		Short: "Print a disassembly listing of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := loader.ParseFile(args[0])
			if err != nil {
				return err
			}
			fmt.Print(ls8.Listing(image))
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, disasmCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runOptions struct {
	trace    bool
	maxSteps int
	keyboard bool
	timer    bool
}

// runMachine drives the machine one step at a time, draining host
// interrupt sources between steps so the core never sees concurrency.
func runMachine(m *ls8.Machine, opts runOptions) error {
	var keys chan byte
	if opts.keyboard {
		kb := console.NewKeyboard()
		if err := kb.Start(); err != nil {
			return fmt.Errorf("keyboard: %w", err)
		}
		defer kb.Stop()
		keys = kb.Keys
	}

	var tick <-chan time.Time
	if opts.timer {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		tick = t.C
	}

	steps := 0
	for !m.Halted() {
		select {
		case b := <-keys:
			m.WriteKey(b)
			m.Raise(ls8.KeyboardInterrupt)
		case <-tick:
			m.Raise(ls8.TimerInterrupt)
		default:
		}

		if opts.trace {
			op := m.RAM[m.PC]
			fmt.Fprintf(os.Stderr, "%02X: %-14s R=%v FL=%03b SP=%02X\n",
				m.PC, ls8.Disassemble(op, m.RAM[m.PC+1], m.RAM[m.PC+2]), m.R, m.FL, m.SP())
		}

		if err := m.Step(); err != nil {
			return err
		}

		steps++
		if opts.maxSteps > 0 && steps >= opts.maxSteps {
			return fmt.Errorf("instruction cap of %d steps reached", opts.maxSteps)
		}
	}
	return nil
}
