// Command fatmod edits a FAT32 disk image in place: one invocation, one
// operation, no mounting. The grammar is unusual for a urfave/cli
// program — the disk path comes first, then the verb — so main splits it
// off by hand before handing the remainder to cli.App, the way the
// teacher's own cmd/main.go wires cli.App/cli.Command/Action functions
// (_examples/dargueta-disko/cmd/main.go).
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	ferrors "github.com/gorkemsolun/FAT32-File-System-Image-Modifier/errors"
	"github.com/gorkemsolun/FAT32-File-System-Image-Modifier/volume"
	"github.com/urfave/cli/v2"
)

const invalidArgumentsMessage = "Invalid arguments. Please enter -h for help"

// openFailure marks an error that should terminate the process with exit
// code 1 — spec.md's one carve-out from "every other failure exits 0":
// the backing store couldn't be opened or its boot sector couldn't be
// parsed.
type openFailure struct {
	err error
}

func (o *openFailure) Error() string { return o.err.Error() }
func (o *openFailure) Unwrap() error { return o.err }

func main() {
	os.Exit(run(os.Args, os.Stdout))
}

func run(argv []string, out io.Writer) int {
	if len(argv) >= 2 && (argv[1] == "-h" || argv[1] == "--help") {
		printUsage(out)
		return 0
	}

	if len(argv) < 3 {
		fmt.Fprintln(out, invalidArgumentsMessage)
		return 0
	}

	diskPath := argv[1]
	command, ok := verbToCommand(argv[2])
	if !ok {
		fmt.Fprintln(out, invalidArgumentsMessage)
		return 0
	}

	app := buildApp(diskPath, out)
	cliArgs := append([]string{argv[0], command}, argv[3:]...)

	if err := app.Run(cliArgs); err != nil {
		var of *openFailure
		if errors.As(err, &of) {
			fmt.Fprintln(os.Stderr, of.Error())
			return 1
		}
		fmt.Fprintln(out, presentError(err))
		return 0
	}

	return 0
}

// verbToCommand translates a dash-prefixed CLI verb into the bare name a
// urfave/cli Command is looked up by, sidestepping any ambiguity between
// urfave's own flag scanner and a leading dash in a command name.
func verbToCommand(verb string) (string, bool) {
	switch verb {
	case "-l":
		return "l", true
	case "-c":
		return "c", true
	case "-w":
		return "w", true
	case "-r":
		return "r", true
	case "-d":
		return "d", true
	default:
		return "", false
	}
}

func buildApp(diskPath string, out io.Writer) *cli.App {
	openVolume := func() (*volume.Volume, error) {
		vol, err := volume.Open(diskPath, func(msg string) { fmt.Fprintln(out, msg) })
		if err != nil {
			if errors.Is(err, ferrors.IOOpen) || errors.Is(err, ferrors.InvalidGeometry) {
				return nil, &openFailure{err: err}
			}
			return nil, err
		}
		return vol, nil
	}

	return &cli.App{
		Name:  "fatmod",
		Usage: "edit a FAT32 disk image in place",
		Commands: []*cli.Command{
			{
				Name:  "l",
				Usage: "list the root directory",
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 0 {
						return ferrors.InvalidArguments
					}
					vol, err := openVolume()
					if err != nil {
						return err
					}
					defer vol.Close()
					return vol.List(out)
				},
			},
			{
				Name:      "c",
				Usage:     "create an empty file",
				ArgsUsage: "NAME",
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 1 {
						return ferrors.InvalidArguments
					}
					vol, err := openVolume()
					if err != nil {
						return err
					}
					defer vol.Close()

					if err := vol.Create(ctx.Args().Get(0)); err != nil {
						return err
					}
					fmt.Fprintln(out, "File created successfully!")
					return nil
				},
			},
			{
				Name:      "w",
				Usage:     "overwrite LENGTH bytes starting at OFFSET with BYTE",
				ArgsUsage: "NAME OFFSET LENGTH BYTE",
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 4 {
						return ferrors.InvalidArguments
					}

					name := ctx.Args().Get(0)
					offset, err1 := strconv.ParseInt(ctx.Args().Get(1), 10, 64)
					length, err2 := strconv.ParseInt(ctx.Args().Get(2), 10, 64)
					value, err3 := strconv.ParseUint(ctx.Args().Get(3), 10, 8)
					if err1 != nil || err2 != nil || err3 != nil || offset < 0 || length < 0 {
						return ferrors.InvalidArguments
					}

					vol, err := openVolume()
					if err != nil {
						return err
					}
					defer vol.Close()

					if err := vol.Write(name, offset, length, byte(value)); err != nil {
						return err
					}
					fmt.Fprintln(out, "Bytes written to the file successfully!")
					return nil
				},
			},
			{
				Name:      "r",
				Usage:     "read a file's contents",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "b", Usage: "binary hex dump"},
					&cli.BoolFlag{Name: "a", Usage: "raw ASCII dump"},
				},
				Action: func(ctx *cli.Context) error {
					binary, ascii := ctx.Bool("b"), ctx.Bool("a")
					if ctx.NArg() != 1 || binary == ascii {
						return ferrors.InvalidArguments
					}

					mode := volume.ReadASCII
					if binary {
						mode = volume.ReadBinary
					}

					vol, err := openVolume()
					if err != nil {
						return err
					}
					defer vol.Close()

					if err := vol.Read(ctx.Args().Get(0), mode, out); err != nil {
						return err
					}
					fmt.Fprintln(out, "Succesfully read!")
					return nil
				},
			},
			{
				Name:      "d",
				Usage:     "delete a file",
				ArgsUsage: "NAME",
				Action: func(ctx *cli.Context) error {
					if ctx.NArg() != 1 {
						return ferrors.InvalidArguments
					}
					vol, err := openVolume()
					if err != nil {
						return err
					}
					defer vol.Close()

					if err := vol.Delete(ctx.Args().Get(0)); err != nil {
						return err
					}
					fmt.Fprintln(out, "File deleted successfully!")
					return nil
				},
			},
		},
	}
}

// presentError renders a business-logic failure the way spec.md's
// end-to-end scenarios expect: AlreadyExists gets its own literal
// message (S6), invalid argument shapes get the standard message, and
// everything else prints its own description.
func presentError(err error) string {
	switch {
	case errors.Is(err, ferrors.AlreadyExists):
		return "File already exists!"
	case errors.Is(err, ferrors.InvalidArguments):
		return invalidArgumentsMessage
	default:
		return err.Error()
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  fatmod -h")
	fmt.Fprintln(out, "  fatmod <DISK> -l")
	fmt.Fprintln(out, "  fatmod <DISK> -c <NAME>")
	fmt.Fprintln(out, "  fatmod <DISK> -w <NAME> <OFFSET> <LENGTH> <BYTE>")
	fmt.Fprintln(out, "  fatmod <DISK> -r -b|-a <NAME>")
	fmt.Fprintln(out, "  fatmod <DISK> -d <NAME>")
}
