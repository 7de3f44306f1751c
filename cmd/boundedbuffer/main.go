// Command boundedbuffer is the bounded-buffer producer/consumer
// application described in Scenario 3 of the specification: N=5 with
// producers at ids 0 and 2 and consumers at 1, 3 and 4 sharing a
// capacity-5 buffer replicated as the monitor's datum.
//
// Grounded on original_source/prodcons.py, generalized from a single
// Python process running five threads to five OS processes — a real
// process group, one peer per process — bootstrapped from flags rather
// than hardcoded roles.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/kasami/monitor/pkg/monitor"
	"github.com/kasami/monitor/pkg/monitor/types"
	"gopkg.in/alecthomas/kingpin.v2"
)

const bufferCapacity = 5

var (
	app = kingpin.New("boundedbuffer", "Distributed-monitor bounded buffer producer/consumer demo.")

	role = app.Flag("role", "Role to run as.").
		Required().
		Enum("producer", "consumer")

	id = app.Flag("id", "This peer's id in [0, group-size).").
		Required().
		Int()

	groupSize = app.Flag("group-size", "Fixed group size N.").
			Default("5").
			Int()

	bus = app.Flag("bus", "Shared fanout bus address every peer binds to.").
		Default("boundedbuffer-demo").
		String()

	count = app.Flag("count", "How many items a producer pushes before exiting.").
		Default("100").
		Int()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	configuration := types.DefaultConfiguration(*bus, *groupSize, types.PeerID(*id))
	m, err := monitor.New(configuration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed starting peer: %v\n", err)
		os.Exit(1)
	}
	defer m.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	switch *role {
	case "producer":
		producerColor := color.New(color.FgGreen)
		runProducer(m, *id, *count, producerColor)
	case "consumer":
		consumerColor := color.New(color.FgCyan)
		done := make(chan struct{})
		go func() {
			runConsumer(m, *id, consumerColor)
			close(done)
		}()
		select {
		case <-sig:
		case <-done:
		}
	}
}

// runProducer pushes 0..count-1 onto the shared buffer, blocking on Wait
// whenever the buffer is full, and pulsing every peer after each push so
// a blocked consumer (or producer) re-evaluates its predicate.
func runProducer(m *monitor.Monitor, self int, count int, trace *color.Color) {
	for i := 0; i < count; i++ {
		m.RequestCS()
		for len(decodeBuffer(m.Get())) >= bufferCapacity {
			m.Wait()
		}

		buf := append(decodeBuffer(m.Get()), i)
		m.Set(encodeBuffer(buf))
		m.LeaveCS()
		m.PulseAll()

		trace.Printf("producer %d: put %d\n", self, i)
	}
}

// runConsumer pops items off the shared buffer forever, blocking on Wait
// whenever the buffer is empty.
func runConsumer(m *monitor.Monitor, self int, trace *color.Color) {
	for {
		m.RequestCS()
		for len(decodeBuffer(m.Get())) == 0 {
			m.Wait()
		}

		buf := decodeBuffer(m.Get())
		item := buf[len(buf)-1]
		buf = buf[:len(buf)-1]
		m.Set(encodeBuffer(buf))
		m.LeaveCS()
		m.PulseAll()

		trace.Printf("consumer %d: got %d\n", self, item)
	}
}
