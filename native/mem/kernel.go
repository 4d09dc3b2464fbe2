package mem

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// kernelWasm is the guest module backing every dataset heap. It exports its
// memory as "mem" and
//
//	fill(ptr: u32, count: u32, value: f64)
//
// which stores value into count consecutive f64 slots starting at ptr.
var kernelWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	// type section: (func (param i32 i32 f64))
	0x01, 0x07, 0x01, 0x60, 0x03, 0x7f, 0x7f, 0x7c, 0x00,
	// function section
	0x03, 0x02, 0x01, 0x00,
	// memory section: min 1 page, no max
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export section: "mem" memory 0, "fill" func 0
	0x07, 0x0e, 0x02,
	0x03, 0x6d, 0x65, 0x6d, 0x02, 0x00,
	0x04, 0x66, 0x69, 0x6c, 0x6c, 0x00, 0x00,
	// code section
	0x0a, 0x26, 0x01, 0x24, 0x00,
	0x02, 0x40, // block
	0x03, 0x40, // loop
	0x20, 0x01, 0x45, 0x0d, 0x01, // br_if 1 (count == 0)
	0x20, 0x00, 0x20, 0x02, 0x39, 0x03, 0x00, // f64.store ptr value
	0x20, 0x00, 0x41, 0x08, 0x6a, 0x21, 0x00, // ptr += 8
	0x20, 0x01, 0x41, 0x01, 0x6b, 0x21, 0x01, // count--
	0x0c, 0x00, // br 0
	0x0b, 0x0b, 0x0b,
}

const memoryExport = "mem"

// kernelSignatures declares the guest exports the driver calls, as WIT
// parameter and result lists.
var kernelSignatures = map[string]kernelSignature{
	"fill": {Params: []string{"u32", "u32", "f64"}},
}

type kernelSignature struct {
	Params  []string
	Results []string
}

func (s kernelSignature) String() string {
	return fmt.Sprintf("func(%s) -> (%s)", strings.Join(s.Params, ", "), strings.Join(s.Results, ", "))
}

// coreType lowers a primitive WIT type to its core wasm value type.
func coreType(t wit.Type) (api.ValueType, error) {
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, fmt.Errorf("kernel parameters must be primitive, got %T", t)
	}
}

func lowerAll(names []string) ([]api.ValueType, error) {
	out := make([]api.ValueType, 0, len(names))
	for _, name := range names {
		t, err := wit.ParseType(name)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", name, err)
		}
		vt, err := coreType(t)
		if err != nil {
			return nil, err
		}
		out = append(out, vt)
	}
	return out, nil
}

// compileKernel compiles the guest and checks every declared signature
// against its exports.
func compileKernel(ctx context.Context, rt wazero.Runtime) (wazero.CompiledModule, error) {
	compiled, err := rt.CompileModule(ctx, kernelWasm)
	if err != nil {
		return nil, fmt.Errorf("compile kernel: %w", err)
	}
	if err := validateKernel(compiled.ExportedFunctions(), kernelSignatures); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	if _, ok := compiled.ExportedMemories()[memoryExport]; !ok {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("kernel does not export memory %q", memoryExport)
	}
	return compiled, nil
}

func validateKernel(exports map[string]api.FunctionDefinition, sigs map[string]kernelSignature) error {
	for name, sig := range sigs {
		def, ok := exports[name]
		if !ok {
			return fmt.Errorf("kernel does not export %q", name)
		}
		params, err := lowerAll(sig.Params)
		if err != nil {
			return fmt.Errorf("kernel %s: %w", name, err)
		}
		results, err := lowerAll(sig.Results)
		if err != nil {
			return fmt.Errorf("kernel %s: %w", name, err)
		}
		if !sameTypes(def.ParamTypes(), params) || !sameTypes(def.ResultTypes(), results) {
			return fmt.Errorf("kernel %s: export does not match %s", name, sig)
		}
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
