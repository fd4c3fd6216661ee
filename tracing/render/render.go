// Package render prints call trace arenas for humans.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/DQYXACML/calltrace/tracing/arena"
)

const (
	pipe   = "│  "
	branch = "├─ "
	last   = "└─ "
	space  = "   "
)

// Tree writes the visible call graph of a, walking each frame's ordering so
// that logs show up between the calls they were emitted between. Store-only
// nodes are skipped.
func Tree(w io.Writer, a *arena.CallTraceArena) error {
	p := &printer{w: w, nodes: a.Nodes()}
	p.node(0, "", "")
	return errors.Wrap(p.err, "render call tree")
}

type printer struct {
	w     io.Writer
	nodes []arena.CallTraceNode
	err   error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) node(idx int, first, rest string) {
	n := &p.nodes[idx]
	p.printf("%s%s\n", first, callLine(&n.Trace))

	for _, o := range n.Ordering {
		switch o.Kind {
		case arena.OrderCall:
			p.node(n.Children[o.Index], rest+branch, rest+pipe)
		case arena.OrderLog:
			p.printf("%s%s\n", rest+branch, logLine(&n.Logs[o.Index]))
		}
	}
	p.printf("%s%s\n", rest+last, returnLine(&n.Trace))
}

func callLine(t *arena.CallTrace) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", uint64(t.GasUsed), t.Address.Hex())
	if t.Kind.IsAnyCreate() {
		fmt.Fprintf(&b, "::new(%d bytes)", len(t.Data))
	} else if sel, ok := t.Selector(); ok {
		fmt.Fprintf(&b, "::%s(%s)", hexutil.Encode(sel[:]), shorten(hexutil.Encode(t.Data[4:]), 66))
	} else if len(t.Data) == 0 {
		b.WriteString("::fallback()")
	}
	if v := t.ValueBig(); v.Sign() > 0 {
		fmt.Fprintf(&b, "{value: %s}", v)
	}
	if t.Kind != arena.CallKindCall {
		fmt.Fprintf(&b, " [%s]", strings.ToLower(t.Kind.String()))
	}
	return b.String()
}

func logLine(l *arena.CallLog) string {
	topics := make([]string, len(l.Topics))
	for i, topic := range l.Topics {
		topics[i] = shorten(topic.Hex(), 18)
	}
	return fmt.Sprintf("emit %s topics=[%s] data=%s", l.Address.Hex(), strings.Join(topics, ", "), shorten(l.Data.String(), 66))
}

func returnLine(t *arena.CallTrace) string {
	status := t.Status
	if status == "" {
		status = "Stop"
	}
	if len(t.Output) == 0 {
		return fmt.Sprintf("← [%s]", status)
	}
	return fmt.Sprintf("← [%s] %s", status, shorten(t.Output.String(), 66))
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Addresses returns the distinct addresses touched by the trace, in the
// order they were first seen.
func Addresses(a *arena.CallTraceArena) []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	for addr := range a.TraceAddresses() {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
