// Package trace decodes the gzipped, line-oriented dynamic-instruction
// trace format the Aladdin core consumes (spec.md §6). The trace-
// producing compiler pass itself is an external collaborator; this
// package only reads its text output.
//
// Each logical record is an instruction header line, zero or more
// parameter lines (one per operand, numbered from 1), an optional result
// line, and an optional memory line — in that order, ending at the next
// header line or EOF.
package trace

import (
	"bufio"
	"compress/gzip"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/aladdin/aerr"
)

// Header is the "0" record: the start of one dynamic instruction.
type Header struct {
	LineNum     int
	Function    string
	BasicBlock  string
	Instruction string
	Opcode      string
}

// Operand is a "1".."k" parameter line or an "r" result line. Field
// order after the tag is fixed: opcode, size (bits), is_reg, register
// name (spec.md §6).
type Operand struct {
	Slot         int // 1-based operand slot; 0 for the result line
	Opcode       string
	SizeBits     int
	IsReg        bool
	RegisterName string
}

// MemRef is the "m" record: address and width for the current memory op.
type MemRef struct {
	Address uint64
	SizeBit int
}

// Record aggregates one full logical record: a header plus its operand,
// result, and memory lines.
type Record struct {
	Line   int // the source line number of the header ("0") line
	Header Header
	Params []Operand // in line order; each entry carries its own Slot
	Result *Operand
	Mem    *MemRef
}

// Reader decodes a gzipped trace stream into a sequence of Records.
type Reader struct {
	scanner *bufio.Scanner
	lineNo  int

	pending *Record // the record currently being assembled
	done    bool
}

// Open wraps an underlying reader (typically an *os.File) with gzip
// decompression and prepares a trace Reader.
func Open(r io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, aerr.TraceParse(0, "not a gzip stream: %v", err)
	}
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &Reader{scanner: sc}, nil
}

// Next returns the next complete Record, or io.EOF when the trace is
// exhausted. Malformed lines, unknown tags, or fields that fail to parse
// produce an *aerr.Error of KindTraceParse naming the offending line.
func (r *Reader) Next() (*Record, error) {
	for {
		if r.done && r.pending == nil {
			return nil, io.EOF
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, aerr.TraceParse(r.lineNo, "read error: %v", err)
			}
			r.done = true
			if r.pending != nil {
				rec := r.pending
				r.pending = nil
				return rec, nil
			}
			return nil, io.EOF
		}

		r.lineNo++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		tag := fields[0]

		switch {
		case tag == "0":
			hdr, err := parseHeader(r.lineNo, fields[1:])
			if err != nil {
				return nil, err
			}
			finished := r.pending
			r.pending = &Record{Line: r.lineNo, Header: hdr}
			if finished != nil {
				return finished, nil
			}
			continue

		case tag == "r":
			if r.pending == nil {
				return nil, aerr.TraceParse(r.lineNo, "result record before any instruction header")
			}
			opr, err := parseOperand(r.lineNo, 0, fields[1:])
			if err != nil {
				return nil, err
			}
			r.pending.Result = &opr
			continue

		case tag == "m":
			if r.pending == nil {
				return nil, aerr.TraceParse(r.lineNo, "memory record before any instruction header")
			}
			mr, err := parseMem(r.lineNo, fields[1:])
			if err != nil {
				return nil, err
			}
			r.pending.Mem = &mr
			continue

		default:
			slot, err := strconv.Atoi(tag)
			if err != nil || slot < 1 {
				return nil, aerr.TraceParse(r.lineNo, "unknown record tag %q", tag)
			}
			if r.pending == nil {
				return nil, aerr.TraceParse(r.lineNo, "parameter record before any instruction header")
			}
			opr, err := parseOperand(r.lineNo, slot, fields[1:])
			if err != nil {
				return nil, err
			}
			r.pending.Params = append(r.pending.Params, opr)
			continue
		}
	}
}

func parseHeader(line int, f []string) (Header, error) {
	if len(f) != 5 {
		return Header{}, aerr.TraceParse(line, "malformed instruction header: want 5 fields, got %d", len(f))
	}
	lineNum, err := strconv.Atoi(f[0])
	if err != nil {
		return Header{}, aerr.TraceParse(line, "bad source line number %q: %v", f[0], err)
	}
	return Header{
		LineNum:     lineNum,
		Function:    f[1],
		BasicBlock:  f[2],
		Instruction: f[3],
		Opcode:      f[4],
	}, nil
}

func parseOperand(line, slot int, f []string) (Operand, error) {
	if len(f) != 4 {
		return Operand{}, aerr.TraceParse(line, "malformed operand record: want 4 fields, got %d", len(f))
	}
	size, err := strconv.Atoi(f[1])
	if err != nil {
		return Operand{}, aerr.TraceParse(line, "bad operand size %q: %v", f[1], err)
	}
	isReg := f[2] == "1"
	return Operand{
		Slot:         slot,
		Opcode:       f[0],
		SizeBits:     size,
		IsReg:        isReg,
		RegisterName: f[3],
	}, nil
}

func parseMem(line int, f []string) (MemRef, error) {
	if len(f) != 2 {
		return MemRef{}, aerr.TraceParse(line, "malformed memory record: want 2 fields, got %d", len(f))
	}
	addr, err := strconv.ParseUint(f[0], 0, 64)
	if err != nil {
		return MemRef{}, aerr.TraceParse(line, "bad memory address %q: %v", f[0], err)
	}
	size, err := strconv.Atoi(f[1])
	if err != nil {
		return MemRef{}, aerr.TraceParse(line, "bad memory size %q: %v", f[1], err)
	}
	return MemRef{Address: addr, SizeBit: size}, nil
}
