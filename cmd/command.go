// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/gnuflag"
)

// Info describes a Command's name and usage.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected positional arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string

	// Doc is the long documentation for the Command.
	Doc string
}

// Usage combines Name and Args to describe the Command's intended usage.
func (i *Info) Usage() string {
	if i.Args == "" {
		return i.Name
	}
	return fmt.Sprintf("%s %s", i.Name, i.Args)
}

// Command is implemented by types that interpret command-line arguments.
type Command interface {
	// Info returns information about the command.
	Info() *Info

	// SetFlags adds command-specific flags to the flag set.
	SetFlags(f *gnuflag.FlagSet)

	// Init initializes the Command before running, using the
	// positional arguments left over after flag parsing.
	Init(args []string) error

	// Run executes the command.
	Run(ctx *Context) error
}

// CommandBase provides the default implementation for SetFlags and Init.
type CommandBase struct{}

// SetFlags does nothing in the simplest case.
func (c *CommandBase) SetFlags(f *gnuflag.FlagSet) {}

// Init in the simplest case makes sure there are no args.
func (c *CommandBase) Init(args []string) error {
	return CheckEmpty(args)
}

// Context represents the run context of a Command.
type Context struct {
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultContext returns a Context suitable for use in non-hosted
// situations.
func DefaultContext() *Context {
	return &Context{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Errorf prints the formatted error message to the Context's Stderr
// with an ERROR severity prefix.
func (ctx *Context) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(ctx.Stderr, "ERROR "+format+"\n", args...)
}

// Warningf prints the formatted message to the Context's Stderr with a
// WARNING severity prefix.
func (ctx *Context) Warningf(format string, args ...interface{}) {
	fmt.Fprintf(ctx.Stderr, "WARNING "+format+"\n", args...)
}

// CheckEmpty is a utility function that returns an error if args is not empty.
func CheckEmpty(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unrecognized args: %s", args)
	}
	return nil
}

// RcPassthroughError indicates that a Run completed with a specific
// process exit code rather than the generic failure code.
type RcPassthroughError struct {
	Code int
}

// Error implements error.
func (e *RcPassthroughError) Error() string {
	return fmt.Sprintf("subprocess encountered error code %v", e.Code)
}

// IsRcPassthroughError returns whether the error is an RcPassthroughError.
func IsRcPassthroughError(err error) bool {
	_, ok := err.(*RcPassthroughError)
	return ok
}

// NewRcPassthroughError creates an error that will have the code used at
// the return code from the cmd.Main function rather than the default of 1
// if there is an error.
func NewRcPassthroughError(code int) error {
	return &RcPassthroughError{code}
}

func printUsage(ctx *Context, c Command) {
	i := c.Info()
	fmt.Fprintf(ctx.Stderr, "Usage: %s\n", i.Usage())
	if i.Purpose != "" {
		fmt.Fprintf(ctx.Stderr, "\nSummary:\n%s\n", i.Purpose)
	}
	if i.Doc != "" {
		fmt.Fprintf(ctx.Stderr, "\nDetails:\n%s\n", strings.TrimSpace(i.Doc))
	}
}

// Main runs the given Command in the supplied Context with the given
// arguments, which should not include the command name. It returns a code
// suitable for passing to os.Exit.
func Main(c Command, ctx *Context, args []string) int {
	f := gnuflag.NewFlagSetWithFlagKnownAs(c.Info().Name, gnuflag.ContinueOnError, "option")
	f.SetOutput(io.Discard)
	c.SetFlags(f)
	if err := f.Parse(false, args); err != nil {
		ctx.Errorf("%v", err)
		printUsage(ctx, c)
		return 2
	}
	if err := c.Init(f.Args()); err != nil {
		ctx.Errorf("%v", err)
		printUsage(ctx, c)
		return 2
	}
	if err := c.Run(ctx); err != nil {
		if IsRcPassthroughError(err) {
			return err.(*RcPassthroughError).Code
		}
		ctx.Errorf("%v", err)
		return 1
	}
	return 0
}
