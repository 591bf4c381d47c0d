// shmctl is an operator tool for inspecting a live broker region.
//
// Usage:
//
//	shmctl [--slot-count N] [--slot-size N] [--dir DIR] <region-name>
//
// Commands (in REPL):
//
//	list                 List every slot's status
//	dump <slot>          Print a slot's header and payload
//	count                Print region-wide occupancy counts
//	force-empty <slot>   Force a single slot to EMPTY
//	help                 Show this help
//	exit / quit / q      Exit
//
// It never participates in the request path; it exists purely for
// operators debugging a stuck region.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/hak023/gemma-broker/pkg/ipcshm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("shmctl", flag.ExitOnError)
	slotCount := fs.Int("slot-count", 16, "number of slots in the region")
	slotSize := fs.Int("slot-size", 8192, "size of one slot in bytes")
	dir := fs.String("dir", "/dev/shm", "directory backing the region")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shmctl [options] <region-name>\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("missing region name")
	}

	region, err := ipcshm.Attach(fs.Arg(0), *slotCount, *slotSize, *dir)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer region.Close()

	r := &REPL{region: region}
	return r.Run()
}

// REPL is the interactive inspection loop.
type REPL struct {
	region *ipcshm.Region
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".shmctl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("shmctl - region inspector (name=%s, slots=%d)\n", r.region.Name(), r.region.SlotCount())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("shmctl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil

		case "help", "?":
			r.printHelp()

		case "list", "ls":
			r.cmdList()

		case "dump":
			r.cmdDump(args)

		case "count":
			r.cmdCount()

		case "force-empty":
			r.cmdForceEmpty(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  list                 List every slot's status
  dump <slot>          Print a slot's header and payload
  count                Print region-wide occupancy counts
  force-empty <slot>   Force a single slot to EMPTY
  clear                Clear the screen
  help                 Show this help
  exit / quit / q      Exit`)
}

func (r *REPL) cmdList() {
	for i := 0; i < r.region.SlotCount(); i++ {
		status, err := r.region.Status(i)
		if err != nil {
			fmt.Printf("slot %d: error: %v\n", i, err)
			continue
		}
		fmt.Printf("slot %d: %s\n", i, status)
	}
}

func (r *REPL) cmdDump(args []string) {
	slotID, ok := parseSlotArg(args)
	if !ok {
		return
	}

	status, err := r.region.Status(slotID)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	payload, err := r.region.ReadPayload(slotID)
	if err != nil {
		fmt.Printf("status=%s, payload read error: %v\n", status, err)
		return
	}

	fmt.Printf("slot %d: status=%s request_id=%q timestamp_ms=%d\n", slotID, status, payload.RequestID, payload.TimestampMs)
	fmt.Printf("payload (%d bytes): %s\n", len(payload.Data), string(payload.Data))
}

func (r *REPL) cmdCount() {
	counts := map[ipcshm.SlotStatus]int{}
	for i := 0; i < r.region.SlotCount(); i++ {
		status, err := r.region.Status(i)
		if err != nil {
			continue
		}
		counts[status]++
	}
	fmt.Printf("empty=%d request=%d processing=%d response=%d error=%d\n",
		counts[ipcshm.StatusEmpty], counts[ipcshm.StatusRequest], counts[ipcshm.StatusProcessing],
		counts[ipcshm.StatusResponse], counts[ipcshm.StatusError])
}

func (r *REPL) cmdForceEmpty(args []string) {
	slotID, ok := parseSlotArg(args)
	if !ok {
		return
	}
	if err := r.region.ClearPayload(slotID); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := r.region.SetStatus(slotID, ipcshm.StatusEmpty); err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("slot %d forced to EMPTY\n", slotID)
}

func parseSlotArg(args []string) (int, bool) {
	if len(args) < 1 {
		fmt.Println("usage: <command> <slot>")
		return 0, false
	}
	slotID, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("invalid slot id: %s\n", args[0])
		return 0, false
	}
	return slotID, true
}
