package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	scm "tinyscheme/vm"
)

func main() {
	app := cli.NewApp()
	app.Name = "tinyscheme"
	app.Usage = "a small embeddable Scheme bytecode runtime"
	app.Version = "0.1.0"

	app.Commands = []cli.Command{
		{
			Name:      "run",
			Usage:     "assemble and run a bytecode listing",
			ArgsUsage: "<file.asm>",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "nargs", Value: 0, Usage: "has no effect; the listing always runs as a toplevel body with an empty stack"},
				cli.BoolFlag{Name: "gc-stats", Usage: "log live/freed counts and duration per GC cycle"},
			},
			Action: runCommand,
		},
		{
			Name:      "debug",
			Usage:     "step an assembled program instruction by instruction",
			ArgsUsage: "<file.asm>",
			Action:    debugCommand,
		},
		{
			Name:      "read",
			Usage:     "read S-expressions from a file or stdin and print them back (write form)",
			ArgsUsage: "[file]",
			Action:    readCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func loadBytecode(path string) (*scm.Runtime, *scm.Bytecode, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	bc, err := scm.Assemble(path, string(src))
	if err != nil {
		return nil, nil, err
	}
	rt := scm.NewRuntime()
	return rt, bc, nil
}

func runCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: tinyscheme run <file.asm>")
	}
	rt, bc, err := loadBytecode(c.Args().Get(0))
	if err != nil {
		return err
	}
	rt.GC.GCStats = c.Bool("gc-stats")
	ctx := rt.NewTopContext()
	codeVal := rt.NewBytecodeObj(bc)
	ctx.Code = codeVal.Obj()

	for {
		result, blocked := rt.Run(ctx)
		switch result {
		case scm.StepFinished:
			fmt.Println(scm.Write(ctx.Result))
			return nil
		case scm.StepRaised:
			return fmt.Errorf("uncaught exception")
		case scm.StepBlocked:
			_ = blocked
			return fmt.Errorf("program blocked on I/O with no scheduler driving it")
		case scm.StepYielded:
			continue
		}
	}
}

// debugCommand is the single-stepping, breakpoint-aware REPL: "n"/
// "next" steps one instruction, "r"/"run" free-runs, "b <line>" toggles
// a breakpoint on a source line, "program" reprints the listing.
func debugCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: tinyscheme debug <file.asm>")
	}
	rt, bc, err := loadBytecode(c.Args().Get(0))
	if err != nil {
		return err
	}
	ctx := rt.NewTopContext()
	codeVal := rt.NewBytecodeObj(bc)
	ctx.Code = codeVal.Obj()

	breakpoints := make(map[int]bool)
	stdin := bufio.NewReader(os.Stdin)
	waitForInput := true

	printState := func() {
		line := bc.SourceMap[ctx.IP]
		instr := "<end>"
		if ctx.IP < len(bc.Code) {
			instr = bc.Code[ctx.IP].String()
		}
		fmt.Printf("%s ip=%d line=%d stack=%v\n",
			color.CyanString("[step]"), ctx.IP, line, ctx.Stack)
		_ = instr
	}

	printState()
	for {
		if !waitForInput {
			if breakpoints[bc.SourceMap[ctx.IP]] {
				fmt.Println(color.YellowString("breakpoint"))
				printState()
				waitForInput = true
				continue
			}
		}

		var line string
		if waitForInput {
			fmt.Print("-> ")
			line, _ = stdin.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))
		}

		switch {
		case !waitForInput, line == "n", line == "next":
			result, _ := stepOne(rt, ctx, bc)
			printState()
			if result != scm.StepYielded {
				fmt.Println(color.GreenString("finished: %s", scm.Write(ctx.Result)))
				return nil
			}
		case line == "program":
			for i, instr := range bc.Code {
				marker := "  "
				if i == ctx.IP {
					marker = color.MagentaString("->")
				}
				fmt.Printf("%s %4d  %s\n", marker, i, instr)
			}
		case line == "r", line == "run":
			waitForInput = false
		case strings.HasPrefix(line, "b "):
			n, err := strconv.Atoi(strings.TrimSpace(line[2:]))
			if err != nil {
				fmt.Println(color.RedString("bad line number"))
				continue
			}
			breakpoints[n] = !breakpoints[n]
		case line == "q", line == "quit":
			return nil
		}
	}
}

// stepOne runs exactly one bytecode instruction using Context.SingleStep,
// the debug REPL's primitive.
func stepOne(rt *scm.Runtime, ctx *scm.Context, bc *scm.Bytecode) (scm.StepResult, error) {
	if ctx.IP >= len(bc.Code) {
		return scm.StepFinished, nil
	}
	ctx.SingleStep = true
	result, _ := rt.Run(ctx)
	ctx.SingleStep = false
	return result, nil
}

func readCommand(c *cli.Context) error {
	var f *os.File
	if c.NArg() > 0 {
		var err error
		f, err = os.Open(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer f.Close()
	} else {
		f = os.Stdin
	}

	rt := scm.NewRuntime()
	port := scm.NewFileInputPort(f.Name(), f)
	reader := scm.NewReader(rt, port)

	for {
		v, err := reader.ReadDatum()
		if err != nil {
			return err
		}
		if v.Kind() == scm.KindEOF {
			return nil
		}
		fmt.Println(scm.Write(v))
	}
}
