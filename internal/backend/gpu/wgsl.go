package gpu

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// validateWGSL parses, lowers and validates generated kernel source with the naga
// front end, so a malformed template fails at compile time on every device.
func validateWGSL(desc KernelDesc, code string) error {
	for _, op := range desc.Operands {
		if wgslReserved[op.Name] {
			return fmt.Errorf("kernel %s: operand %q is a reserved word in wgsl", desc.Name(), op.Name)
		}
	}
	ast, err := naga.Parse(code)
	if err != nil {
		return fmt.Errorf("kernel %s: parsing wgsl: %w", desc.Name(), err)
	}
	module, err := naga.LowerWithSource(ast, code)
	if err != nil {
		return fmt.Errorf("kernel %s: lowering wgsl: %w", desc.Name(), err)
	}
	issues, err := naga.Validate(module)
	if err != nil {
		return fmt.Errorf("kernel %s: validating wgsl: %w", desc.Name(), err)
	}
	if len(issues) > 0 {
		errs := make([]error, len(issues))
		for i, issue := range issues {
			errs[i] = issue
		}
		return fmt.Errorf("kernel %s: invalid wgsl: %w", desc.Name(), errors.Join(errs...))
	}
	return nil
}

// wgslReserved holds the identifiers WGSL reserves for future use. naga accepts
// them; browser and native WebGPU front ends reject them.
var wgslReserved = func() map[string]bool {
	words := strings.Fields(`
		NULL Self abstract active alignas alignof as asm asm_fragment async attribute auto
		await become binding_array cast catch class co_await co_return co_yield coherent
		column_major common compile compile_fragment concept const_cast consteval constexpr
		constinit crate debugger decltype delete demote demote_to_helper do dynamic_cast
		enum explicit export extends extern external fallthrough filter final finally friend
		from fxgroup get goto groupshared highp impl implements import inline instanceof
		interface layout lowp macro macro_rules match mediump meta mod module move mut
		mutable namespace new nil noexcept noinline nointerpolation noperspective null
		nullptr of operator package packoffset partition pass patch pixelfragment precise
		precision premerge priv protected pub public readonly ref regardless register
		reinterpret_cast require resource restrict self set shared sizeof smooth snorm
		static static_assert static_cast std subroutine super target template this
		thread_local throw trait try type typedef typeid typename typeof union unless unorm
		unsafe unsized use using varying virtual volatile wgsl where with writeonly yield`)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()
