package irc

import (
	"bufio"
	"fmt"
	"net"

	"go.uber.org/zap"
)

const chanCapacity = 64

// ChanInOut bridges a transport connection to a pair of Message channels:
// one goroutine scans and parses inbound lines, another drains outbound
// messages and writes them with the "\r\n" line ending. The writer closes
// conn once out is closed or a write fails, which also ends the reader; the
// reader only closes in (on EOF or a read error) and does not stop the
// writer. This is the external
// transport collaborator spec §1 treats as a byte-in/byte-out channel; it is
// provided here so a demonstration binary has something concrete to wire the
// Client and Registry into.
func ChanInOut(conn net.Conn, log *zap.Logger) (in <-chan Message, out chan<- Message) {
	if log == nil {
		log = zap.NewNop()
	}

	in_ := make(chan Message, chanCapacity)
	out_ := make(chan Message, chanCapacity)

	go func() {
		r := bufio.NewScanner(conn)
		for r.Scan() {
			line := r.Text()
			msg, err := ParseMessage(line)
			if err != nil {
				log.Debug("dropping unparseable line", zap.Error(err))
				continue
			}
			in_ <- msg
		}
		close(in_)
	}()

	go func() {
		for msg := range out_ {
			_, err := fmt.Fprintf(conn, "%s\r\n", msg.String())
			if err != nil {
				log.Warn("outbound write failed", zap.Error(err))
				break
			}
		}
		_ = conn.Close()
	}()

	return in_, out_
}
