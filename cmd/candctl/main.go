// Binary candctl is a thin operational CLI for manual frame injection
// and channel registration against a running cand daemon (spec.md §6,
// "Supplemental: cmd/candctl"). It never touches the core directly:
// every action goes through package candlib exactly as an application
// above the core would, using package resolve to turn the operator's
// textual device name into the numeric triple candlib.Open expects.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/cand/pkg/candlib"
	"github.com/samsamfire/cand/pkg/mailbox"
	"github.com/samsamfire/cand/pkg/resolve"
)

func usage() {
	fmt.Fprintf(os.Stderr, `candctl: manual channel access for a running cand daemon

usage:
  candctl [-timeout 2s] [-resplen 64] request <FnType:Slot:FnEnum> <hex-payload>
  candctl [-timeout 5s] [-count 1] stream <FnType:Slot:FnEnum>

flags go before the subcommand.

flags:
`)
	flag.PrintDefaults()
}

func main() {
	mailboxDir := flag.String("mailbox-dir", "/var/run/cand", "directory holding the daemon's IPC mailbox sockets")
	timeout := flag.Duration("timeout", 2*time.Second, "per-call timeout budget")
	resplen := flag.Int("resplen", 64, "maximum response size in bytes (request only)")
	count := flag.Int("count", 1, "number of messages to receive (stream only)")
	flag.Usage = usage
	flag.Parse()

	mailbox.RuntimeDir = *mailboxDir

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "request":
		runRequest(args[1:], *timeout, *resplen)
	case "stream":
		runStream(args[1:], *timeout, *count)
	default:
		usage()
		os.Exit(2)
	}
}

func runRequest(args []string, timeout time.Duration, resplen int) {
	if len(args) != 2 {
		usage()
		os.Exit(2)
	}
	triple, err := resolve.Parse(args[0])
	if err != nil {
		log.Errorf("[CANDCTL] %v", err)
		os.Exit(1)
	}
	payload, err := hex.DecodeString(args[1])
	if err != nil {
		log.Errorf("[CANDCTL] invalid hex payload: %v", err)
		os.Exit(1)
	}

	ch, err := candlib.Open(triple.Slot, triple.FnType, triple.FnCount, false)
	if err != nil {
		log.Errorf("[CANDCTL] open: %v", err)
		os.Exit(1)
	}
	defer ch.Close()

	resp := make([]byte, resplen)
	n, attempts, err := ch.Request(payload, resp, timeout)
	if err != nil {
		log.Errorf("[CANDCTL] request failed after %d attempt(s): %v", attempts, err)
		os.Exit(1)
	}
	fmt.Println(hex.EncodeToString(resp[:n]))
}

func runStream(args []string, timeout time.Duration, count int) {
	if len(args) != 1 {
		usage()
		os.Exit(2)
	}
	triple, err := resolve.Parse(args[0])
	if err != nil {
		log.Errorf("[CANDCTL] %v", err)
		os.Exit(1)
	}

	ch, err := candlib.Open(triple.Slot, triple.FnType, triple.FnCount, true)
	if err != nil {
		log.Errorf("[CANDCTL] open: %v", err)
		os.Exit(1)
	}
	defer ch.Close()

	buf := make([]byte, mailbox.MaxRecordSize)
	for i := 0; i < count; i++ {
		n, err := ch.StreamRecv(buf, timeout)
		if err != nil {
			log.Errorf("[CANDCTL] stream_recv failed: %v", err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(buf[:n]))
	}
}
