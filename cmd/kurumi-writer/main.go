// Command kurumi-writer programs or verifies a binary image on an RL78
// microcontroller through its on-chip UART bootloader.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/kobolt/kurumi-tools/rl78"
)

func main() {
	var (
		help    = pflag.BoolP("help", "h", false, "Display this help and exit.")
		traffic = pflag.BoolP("traffic", "t", false, "Print TTY/serial traffic debugging info.")
		quiet   = pflag.BoolP("quiet", "q", false, "Quiet mode, do not print anything.")
		verify  = pflag.BoolP("verify", "v", false, "Verification mode, do not erase and program.")
		device  = pflag.StringP("device", "d", "", "Use TTY DEVICE.")
		file    = pflag.StringP("file", "f", "", "Use FILE for programming or verification.")
		offset  = pflag.IntP("offset", "o", 0, "Program or verify at block OFFSET instead of 0.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <options>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n%s\n", pflag.CommandLine.FlagUsages())
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if *device == "" {
		fmt.Fprintln(os.Stderr, "Please specify a TTY!")
		pflag.Usage()
		os.Exit(1)
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "Please specify a file!")
		pflag.Usage()
		os.Exit(1)
	}
	if *offset < 0 {
		fmt.Fprintln(os.Stderr, "Block offset must not be negative!")
		pflag.Usage()
		os.Exit(1)
	}

	logger := log.New(os.Stderr)
	if *traffic {
		logger.SetLevel(log.DebugLevel)
	}

	session := rl78.NewSession(rl78.Config{
		Device:      *device,
		ImageFile:   *file,
		VerifyOnly:  *verify,
		BlockOffset: *offset,
		Trace:       *traffic,
		Quiet:       *quiet,
		Logger:      logger,
	})
	if err := session.Run(); err != nil {
		logger.Error("session aborted", "err", err)
		os.Exit(1)
	}
}
