package definition

import (
	"fmt"

	"github.com/kasami/monitor/pkg/monitor/types"
)

// WithPeer decorates a Logger so every line it emits is tagged with the
// peer id that produced it. A monitortest.Cluster runs several peers in a
// single process, each logging to the same standard error stream, so
// without this tag there is no way to tell which peer logged a given line.
func WithPeer(id types.PeerID, under types.Logger) types.Logger {
	return &peerLogger{id: id, under: under}
}

type peerLogger struct {
	id    types.PeerID
	under types.Logger
}

func (l *peerLogger) tagged(format string) string {
	return fmt.Sprintf("peer=%d %s", l.id, format)
}

func (l *peerLogger) Info(v ...interface{}) {
	l.under.Infof("%s", fmt.Sprintf(l.tagged("%s"), fmt.Sprint(v...)))
}

func (l *peerLogger) Infof(format string, v ...interface{}) {
	l.under.Infof(l.tagged(format), v...)
}

func (l *peerLogger) Warn(v ...interface{}) {
	l.under.Warnf("%s", fmt.Sprintf(l.tagged("%s"), fmt.Sprint(v...)))
}

func (l *peerLogger) Warnf(format string, v ...interface{}) {
	l.under.Warnf(l.tagged(format), v...)
}

func (l *peerLogger) Error(v ...interface{}) {
	l.under.Errorf("%s", fmt.Sprintf(l.tagged("%s"), fmt.Sprint(v...)))
}

func (l *peerLogger) Errorf(format string, v ...interface{}) {
	l.under.Errorf(l.tagged(format), v...)
}

func (l *peerLogger) Debug(v ...interface{}) {
	l.under.Debugf("%s", fmt.Sprintf(l.tagged("%s"), fmt.Sprint(v...)))
}

func (l *peerLogger) Debugf(format string, v ...interface{}) {
	l.under.Debugf(l.tagged(format), v...)
}

func (l *peerLogger) Fatal(v ...interface{}) {
	l.under.Fatalf("%s", fmt.Sprintf(l.tagged("%s"), fmt.Sprint(v...)))
}

func (l *peerLogger) Fatalf(format string, v ...interface{}) {
	l.under.Fatalf(l.tagged(format), v...)
}

func (l *peerLogger) Panic(v ...interface{}) {
	l.under.Panicf("%s", fmt.Sprintf(l.tagged("%s"), fmt.Sprint(v...)))
}

func (l *peerLogger) Panicf(format string, v ...interface{}) {
	l.under.Panicf(l.tagged(format), v...)
}

func (l *peerLogger) ToggleDebug(value bool) bool {
	return l.under.ToggleDebug(value)
}
