// Package console implements the operator console on standard input. It is
// a convenience surface for a field operator sitting at the relay host; the
// remote dashboard uses the control-plane listener instead.
package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/helphub/relay-service/internal/service"
)

type Console struct {
	router *service.Router
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
}

func New(router *service.Router, logger *slog.Logger) *Console {
	return &Console{
		router: router,
		logger: logger.With(slog.String("component", "console")),
		in:     os.Stdin,
		out:    os.Stdout,
	}
}

// Run reads verbs until EOF. It runs as a daemon goroutine; the process does
// not wait for it on shutdown because stdin reads cannot be interrupted.
func (c *Console) Run() {
	scanner := bufio.NewScanner(c.in)
	fmt.Fprintln(c.out, "console ready, type 'help' for commands")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Operators used to slash-prefixed chat commands get the same verbs.
		line = strings.TrimPrefix(line, "/")
		verb, arg, _ := strings.Cut(line, " ")
		c.execute(strings.ToLower(verb), strings.TrimSpace(arg))
	}
	c.logger.Info("console input closed")
}

func (c *Console) execute(verb, arg string) {
	switch verb {
	case "stats":
		c.stats()
	case "clients":
		c.clients()
	case "pending":
		c.pending(arg)
	case "tail":
		c.tail(arg)
	case "help":
		c.help()
	default:
		fmt.Fprintf(c.out, "unknown command %q, type 'help' for commands\n", verb)
	}
}

func (c *Console) stats() {
	stats, err := c.router.Stats()
	if err != nil {
		fmt.Fprintf(c.out, "stats unavailable: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "online: %d  pending: %d  stored total: %d\n",
		stats.OnlineClients, stats.PendingMessages, stats.TotalMessages)
}

func (c *Console) clients() {
	clients := c.router.Clients()
	if len(clients) == 0 {
		fmt.Fprintln(c.out, "no clients connected")
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTRANSPORT\tLAST SEEN")
	for _, cl := range clients {
		fmt.Fprintf(w, "%s\t%s\t%s\n", cl.ID, cl.Transport,
			cl.LastSeen.Format(time.RFC3339))
	}
	w.Flush()
}

func (c *Console) pending(identity string) {
	if identity == "" {
		fmt.Fprintln(c.out, "usage: pending <client-id>")
		return
	}
	rows, err := c.router.Pending(identity)
	if err != nil {
		fmt.Fprintf(c.out, "queue unavailable: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Fprintf(c.out, "nothing pending for %s\n", identity)
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FROM\tPRIORITY\tBODY")
	for _, rec := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.From, rec.Priority, rec.Body)
	}
	w.Flush()
}

func (c *Console) tail(arg string) {
	n := 10
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed <= 0 {
			fmt.Fprintln(c.out, "usage: tail <n>")
			return
		}
		n = parsed
	}
	lines, err := c.router.Tail(n)
	if err != nil {
		fmt.Fprintf(c.out, "message log unavailable: %v\n", err)
		return
	}
	for _, line := range lines {
		fmt.Fprintln(c.out, line)
	}
}

func (c *Console) help() {
	fmt.Fprint(c.out, ""+
		"stats          online and queued message counts\n"+
		"clients        connected clients with transport and last activity\n"+
		"pending <id>   queued messages waiting for a client\n"+
		"tail <n>       last n lines of the message log\n"+
		"help           this text\n")
}
