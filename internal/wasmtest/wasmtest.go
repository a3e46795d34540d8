// Package wasmtest emits minimal WebAssembly binaries for tests, so the
// repository needs no pre-built .wasm artifacts and no guest toolchain.
//
// A built module exports one linear memory and, optionally, a function,
// nullary unless ExportParams says otherwise. The function body pushes
// constant arguments, calls each declared host import in order, drops the
// results, and either returns or traps.
package wasmtest

import "encoding/binary"

// Import declares one host function the module imports and calls from its
// exported function. All parameters and results are i32.
type Import struct {
	Module string
	Name   string
	// Args are pushed as i32 constants before the call; their count
	// fixes the imported function's parameter count.
	Args []uint32
	// Results is the imported function's result count; each result is
	// dropped after the call.
	Results int
}

// Module describes the binary to build.
type Module struct {
	// ExportName is the exported function's name. Empty means the module
	// exports no function at all.
	ExportName string
	// ExportParams gives the exported function that many i32 parameters
	// instead of none. The parameters are never read.
	ExportParams int
	// Trap makes the function body end in unreachable.
	Trap bool
	// Imports are called in order at the top of the function body.
	Imports []Import
	// Data is placed at offset 0 of the exported memory.
	Data []byte
}

// Build encodes m as a wasm binary.
func Build(m Module) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d} // magic
	out = binary.LittleEndian.AppendUint32(out, 1)

	out = append(out, typeSection(m)...)
	if len(m.Imports) > 0 {
		out = append(out, importSection(m)...)
	}
	if m.ExportName != "" {
		out = append(out, section(3, append(uleb(1), uleb(0)...))...) // func 0: type 0
	}
	out = append(out, section(5, []byte{0x01, 0x00, 0x01})...) // one memory, min 1 page
	out = append(out, exportSection(m)...)
	if m.ExportName != "" {
		out = append(out, codeSection(m)...)
	}
	if len(m.Data) > 0 {
		out = append(out, dataSection(m.Data)...)
	}
	return out
}

// typeSection emits type 0 for the exported function, then one type per
// import.
func typeSection(m Module) []byte {
	body := uleb(uint32(1 + len(m.Imports)))
	body = append(body, 0x60)
	body = append(body, uleb(uint32(m.ExportParams))...)
	for i := 0; i < m.ExportParams; i++ {
		body = append(body, 0x7f)
	}
	body = append(body, 0x00)
	for _, imp := range m.Imports {
		body = append(body, 0x60)
		body = append(body, uleb(uint32(len(imp.Args)))...)
		for range imp.Args {
			body = append(body, 0x7f) // i32
		}
		body = append(body, uleb(uint32(imp.Results))...)
		for i := 0; i < imp.Results; i++ {
			body = append(body, 0x7f)
		}
	}
	return section(1, body)
}

func importSection(m Module) []byte {
	body := uleb(uint32(len(m.Imports)))
	for i, imp := range m.Imports {
		body = append(body, name(imp.Module)...)
		body = append(body, name(imp.Name)...)
		body = append(body, 0x00) // func import
		body = append(body, uleb(uint32(1+i))...)
	}
	return section(2, body)
}

func exportSection(m Module) []byte {
	count := 1
	if m.ExportName != "" {
		count = 2
	}
	body := uleb(uint32(count))
	body = append(body, name("memory")...)
	body = append(body, 0x02) // memory export
	body = append(body, uleb(0)...)
	if m.ExportName != "" {
		body = append(body, name(m.ExportName)...)
		body = append(body, 0x00) // func export
		body = append(body, uleb(uint32(len(m.Imports)))...)
	}
	return section(7, body)
}

func codeSection(m Module) []byte {
	var instrs []byte
	for i, imp := range m.Imports {
		for _, arg := range imp.Args {
			instrs = append(instrs, 0x41) // i32.const
			instrs = append(instrs, sleb(int32(arg))...)
		}
		instrs = append(instrs, 0x10) // call
		instrs = append(instrs, uleb(uint32(i))...)
		for r := 0; r < imp.Results; r++ {
			instrs = append(instrs, 0x1a) // drop
		}
	}
	if m.Trap {
		instrs = append(instrs, 0x00) // unreachable
	}
	instrs = append(instrs, 0x0b) // end

	fn := append(uleb(0), instrs...) // no locals
	body := uleb(1)
	body = append(body, uleb(uint32(len(fn)))...)
	body = append(body, fn...)
	return section(10, body)
}

func dataSection(data []byte) []byte {
	body := uleb(1)
	body = append(body, uleb(0)...)           // memory 0
	body = append(body, 0x41, 0x00, 0x0b)     // offset: i32.const 0, end
	body = append(body, uleb(uint32(len(data)))...)
	body = append(body, data...)
	return section(11, body)
}

func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(body)))...)
	return append(out, body...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}
