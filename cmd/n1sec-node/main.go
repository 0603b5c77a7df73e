package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"

	"n1sec/internal/channel"
	"n1sec/internal/debuglog"
	"n1sec/internal/encryptedchat"
	"n1sec/internal/metrics"
	"n1sec/internal/room"
	"n1sec/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "hub":
		return runHub(args[1:], stdout, stderr)
	case "run":
		return runNode(args[1:], stdout, stderr)
	case "status":
		return runStatus(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: n1sec-node <hub|run|status> [args]")
	fmt.Fprintln(w, "  hub    --addr <ip:port>")
	fmt.Fprintln(w, "  run    --hub <ip:port> --user <name> [--solo] [--debug] [--metrics <path>]")
	fmt.Fprintln(w, "  status --metrics <path>")
}

func runHub(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "listen addr (host:port)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *addr == "" {
		fmt.Fprintln(stderr, "missing --addr")
		return 1
	}
	hub, err := room.ListenHub(*addr)
	if err != nil {
		fmt.Fprintf(stderr, "hub: %v\n", err)
		return 1
	}
	defer hub.Close()
	fmt.Fprintf(stdout, "READY addr=%s\n", hub.Addr())
	select {} // the hub's accept/relay goroutines run until the process is killed
}

// cliObserver prints Channel lifecycle events the way the teacher's
// runNode prints READY/status lines: one line per event, to stdout.
type cliObserver struct {
	stdout io.Writer
}

func (o *cliObserver) Joined()           { fmt.Fprintln(o.stdout, "joined") }
func (o *cliObserver) Authorized()       { fmt.Fprintln(o.stdout, "authorized") }
func (o *cliObserver) UserJoined(u string) {
	fmt.Fprintf(o.stdout, "user joined: %s\n", u)
}
func (o *cliObserver) UserAuthenticated(u string, _ []byte) {
	fmt.Fprintf(o.stdout, "user authenticated: %s\n", u)
}
func (o *cliObserver) UserAuthenticationFailed(u string) {
	fmt.Fprintf(o.stdout, "user authentication FAILED: %s\n", u)
}
func (o *cliObserver) UserAuthorizedBy(authorizer, subject string) {
	fmt.Fprintf(o.stdout, "%s authorized %s\n", authorizer, subject)
}
func (o *cliObserver) UserPromoted(u string) {
	fmt.Fprintf(o.stdout, "user promoted: %s\n", u)
}
func (o *cliObserver) UserLeft(u string) {
	fmt.Fprintf(o.stdout, "user left: %s\n", u)
}
func (o *cliObserver) ChatReceived(sender string, plaintext []byte) {
	fmt.Fprintf(o.stdout, "%s: %s\n", sender, plaintext)
}

func runNode(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hubAddr := fs.String("hub", "", "hub address (host:port)")
	username := fs.String("user", "", "this node's username")
	solo := fs.Bool("solo", false, "start a brand-new channel instead of waiting to join one")
	debug := fs.Bool("debug", false, "enable debug logging")
	metricsPath := fs.String("metrics", "", "path to write a metrics snapshot to on exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *hubAddr == "" || *username == "" {
		fmt.Fprintln(stderr, "missing --hub or --user")
		return 1
	}
	if *debug {
		_ = os.Setenv("N1SEC_DEBUG", "1")
	}

	identity, err := room.NewIdentity(*username)
	if err != nil {
		fmt.Fprintf(stderr, "identity: %v\n", err)
		return 1
	}

	m := metrics.New()
	if *metricsPath != "" {
		defer func() { _ = m.WriteSnapshot(*metricsPath) }()
	}

	var (
		mu    sync.Mutex
		ch    *channel.Channel
		r     *room.QUICRoom
		ready = make(chan struct{})
	)
	ec := encryptedchat.New(*username)
	opts := channel.Options{Interface: &cliObserver{stdout: stdout}, Metrics: m}

	onMessage := func(sender string, payload []byte) {
		mu.Lock()
		c := ch
		mu.Unlock()
		if c != nil {
			if err := c.MessageReceived(sender, payload); err != nil {
				debuglog.Debugf("message from %s rejected: %v", sender, err)
			}
			return
		}
		if sender == *username {
			return
		}
		msgType, err := wire.MessageType(payload)
		if err != nil || msgType != wire.TypeChannelAnnouncement {
			return
		}
		ann, err := wire.DecodeChannelAnnouncement(payload)
		if err != nil {
			return
		}
		mu.Lock()
		rm := r
		mu.Unlock()
		if rm == nil {
			// the hub relayed an announcement before DialQUICRoom returned
			// to us; it is dropped, and since an announcer sends its
			// announcement only once, this node keeps waiting for another.
			return
		}
		bootstrapped, err := channel.NewFromAnnouncement(rm, ec, sender, ann, opts)
		if err != nil {
			debuglog.Debugf("bootstrap from announcement failed: %v", err)
			return
		}
		mu.Lock()
		ch = bootstrapped
		mu.Unlock()
		close(ready)
	}

	dialed, err := room.DialQUICRoom(*hubAddr, identity, onMessage)
	if err != nil {
		fmt.Fprintf(stderr, "dial hub: %v\n", err)
		return 1
	}
	mu.Lock()
	r = dialed
	mu.Unlock()
	defer r.Close()

	if *solo {
		c, err := channel.NewSolo(r, ec, opts)
		if err != nil {
			fmt.Fprintf(stderr, "new solo channel: %v\n", err)
			return 1
		}
		mu.Lock()
		ch = c
		mu.Unlock()
		close(ready)
		if err := c.Announce(); err != nil {
			fmt.Fprintf(stderr, "announce: %v\n", err)
			return 1
		}
		c.Activate()
	} else {
		fmt.Fprintln(stdout, "waiting for a channel announcement...")
	}

	<-ready
	mu.Lock()
	c := ch
	mu.Unlock()
	if !*solo {
		if err := c.Join(); err != nil {
			fmt.Fprintf(stderr, "join: %v\n", err)
			return 1
		}
		c.Activate()
	}
	fmt.Fprintf(stdout, "READY user=%s hub=%s\n", *username, *hubAddr)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := c.SendChat([]byte(line)); err != nil {
			fmt.Fprintf(stderr, "send: %v\n", err)
		}
	}
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("metrics", "", "path to a metrics snapshot written by `run`")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *path == "" {
		fmt.Fprintln(stderr, "missing --metrics")
		return 1
	}
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(stderr, "status: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	return 0
}
