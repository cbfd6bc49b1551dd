package scm

import (
	"fmt"
	"strconv"
	"strings"
)

/*
	Write renders a Value as R7RS `write` would: strings and characters
	quoted and escaped, symbols printed bare (pipe-quoted only if they
	contain a delimiter), and shared or cyclic pair/vector structure
	emitted with datum-label syntax (#N= / #N#) so that read(write(v))
	reproduces the original graph -- the round-trip property the
	testable-properties section requires. Display renders the same way
	except strings and characters are emitted literally, unquoted.
*/
func Write(v Value) string {
	var b strings.Builder
	labels := assignLabels(v)
	wr := &writer{out: &b, labels: labels, display: false}
	wr.write(v)
	return b.String()
}

func Display(v Value) string {
	var b strings.Builder
	labels := assignLabels(v)
	wr := &writer{out: &b, labels: labels, display: true}
	wr.write(v)
	return b.String()
}

type writer struct {
	out     *strings.Builder
	labels  map[*Object]int
	emitted map[*Object]bool
	display bool
}

// assignLabels walks v once to find every object reachable more than
// once (shared structure) or reachable from itself (a cycle), assigning
// each such object a label number in first-visit order. Objects visited
// exactly once need no label.
func assignLabels(v Value) map[*Object]int {
	seen := make(map[*Object]int)   // visit count
	order := make(map[*Object]int)  // first-seen index, for stable numbering
	idx := 0
	var walk func(Value)
	walk = func(val Value) {
		o := val.Obj()
		if o == nil {
			return
		}
		seen[o]++
		if seen[o] > 1 {
			return
		}
		order[o] = idx
		idx++
		switch o.Tag {
		case TagPair:
			p := o.Payload.(*Pair)
			walk(p.Car)
			walk(p.Cdr)
		case TagVector:
			for _, s := range o.Payload.(*Vector).Slots {
				walk(s)
			}
		}
	}
	walk(v)

	labels := make(map[*Object]int)
	n := 0
	for o, count := range seen {
		if count > 1 {
			labels[o] = 0 // placeholder, numbered below in first-seen order
			_ = n
		}
	}
	// Renumber by first-seen order so output is deterministic across runs.
	type pair struct {
		o   *Object
		idx int
	}
	var shared []pair
	for o := range labels {
		shared = append(shared, pair{o, order[o]})
	}
	for i := 0; i < len(shared); i++ {
		for j := i + 1; j < len(shared); j++ {
			if shared[j].idx < shared[i].idx {
				shared[i], shared[j] = shared[j], shared[i]
			}
		}
	}
	for i, p := range shared {
		labels[p.o] = i
	}
	return labels
}

func (w *writer) write(v Value) {
	if o := v.Obj(); o != nil {
		if label, shared := w.labels[o]; shared {
			if w.emitted == nil {
				w.emitted = make(map[*Object]bool)
			}
			if w.emitted[o] {
				fmt.Fprintf(w.out, "#%d#", label)
				return
			}
			w.emitted[o] = true
			fmt.Fprintf(w.out, "#%d=", label)
		}
	}

	switch v.Kind() {
	case KindFixnum:
		w.out.WriteString(strconv.FormatInt(v.Fixnum(), 10))
	case KindBool:
		if v.IsTruthy() {
			w.out.WriteString("#t")
		} else {
			w.out.WriteString("#f")
		}
	case KindNull:
		w.out.WriteString("()")
	case KindEOF:
		w.out.WriteString("#<eof>")
	case KindVoid:
		w.out.WriteString("#<void>")
	case KindUndefined:
		w.out.WriteString("#<undefined>")
	case KindChar:
		w.writeChar(v.Char())
	case KindFloat32:
		w.out.WriteString(strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32))
	case KindStringCursor:
		fmt.Fprintf(w.out, "#<string-cursor %d>", v.CursorOffset())
	case KindReaderLabel:
		fmt.Fprintf(w.out, "#%d#", v.ReaderLabelID())
	case KindHeap:
		w.writeHeap(v)
	}
}

func (w *writer) writeChar(r rune) {
	if w.display {
		w.out.WriteRune(r)
		return
	}
	switch r {
	case ' ':
		w.out.WriteString("#\\space")
	case '\n':
		w.out.WriteString("#\\newline")
	case '\t':
		w.out.WriteString("#\\tab")
	case 0:
		w.out.WriteString("#\\null")
	case '\r':
		w.out.WriteString("#\\return")
	default:
		fmt.Fprintf(w.out, "#\\%c", r)
	}
}

func (w *writer) writeHeap(v Value) {
	o := v.Obj()
	switch o.Tag {
	case TagPair:
		w.writePair(o)
	case TagVector:
		w.out.WriteString("#(")
		slots := o.Payload.(*Vector).Slots
		for i, s := range slots {
			if i > 0 {
				w.out.WriteString(" ")
			}
			w.write(s)
		}
		w.out.WriteString(")")
	case TagBytes:
		w.out.WriteString("#u8(")
		bs := o.Payload.(*Bytevector).Bytes
		for i, b := range bs {
			if i > 0 {
				w.out.WriteString(" ")
			}
			fmt.Fprintf(w.out, "%d", b)
		}
		w.out.WriteString(")")
	case TagString:
		s := goString(v)
		if w.display {
			w.out.WriteString(s)
		} else {
			w.out.WriteString(quoteString(s))
		}
	case TagSymbol:
		name := o.Payload.(*Symbol).Name
		if !w.display && needsPipeQuoting(name) {
			fmt.Fprintf(w.out, "|%s|", strings.ReplaceAll(name, "|", "\\|"))
		} else {
			w.out.WriteString(name)
		}
	case TagProcedure:
		p := o.Payload.(*Procedure)
		if p.Name != "" {
			fmt.Fprintf(w.out, "#<procedure %s>", p.Name)
		} else {
			w.out.WriteString("#<procedure>")
		}
	case TagException:
		e := o.Payload.(*Exception)
		fmt.Fprintf(w.out, "#<exception %s: %s>", e.Kind, goString(e.Message))
	case TagPort:
		fmt.Fprintf(w.out, "#<port %s>", o.Payload.(*Port).Name)
	case TagEnvironment:
		w.out.WriteString("#<environment>")
	case TagPromise:
		w.out.WriteString("#<promise>")
	case TagContinuation:
		w.out.WriteString("#<continuation>")
	default:
		fmt.Fprintf(w.out, "#<object tag=%d>", o.Tag)
	}
}

func (w *writer) writePair(o *Object) {
	w.out.WriteString("(")
	cur := o
	for {
		p := cur.Payload.(*Pair)
		w.write(p.Car)

		cdrObj := p.Cdr.Obj()
		if cdrObj != nil && cdrObj.Tag == TagPair {
			if label, shared := w.labels[cdrObj]; shared {
				if w.emitted[cdrObj] {
					fmt.Fprintf(w.out, " . #%d#)", label)
					return
				}
				w.emitted[cdrObj] = true
				fmt.Fprintf(w.out, " #%d=", label)
			} else {
				w.out.WriteString(" ")
			}
			cur = cdrObj
			continue
		}
		if p.Cdr.IsNull() {
			w.out.WriteString(")")
			return
		}
		w.out.WriteString(" . ")
		w.write(p.Cdr)
		w.out.WriteString(")")
		return
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\r':
			b.WriteString("\\r")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func needsPipeQuoting(name string) bool {
	if name == "" {
		return true
	}
	for _, r := range name {
		if isDelimiter(r) || r == '|' || r == '#' {
			return true
		}
	}
	return false
}
