// Package lockcheck finds functions that can return while still holding a
// sync.Mutex or sync.RWMutex they acquired.
package lockcheck

import (
	"errors"
	"fmt"
	"go/token"
	"sort"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Finding is one acquisition that some exit path never releases.
type Finding struct {
	Function string
	Location string // file:line of the acquiring call
	Message  string
}

// mode separates exclusive from shared holds; an RUnlock does not release a
// Lock and vice versa.
type mode int

const (
	none mode = iota
	exclusive
	shared
)

var acquires = map[string]mode{
	"(*sync.Mutex).Lock":    exclusive,
	"(*sync.RWMutex).Lock":  exclusive,
	"(*sync.RWMutex).RLock": shared,
}

var releases = map[string]mode{
	"(*sync.Mutex).Unlock":    exclusive,
	"(*sync.RWMutex).Unlock":  exclusive,
	"(*sync.RWMutex).RUnlock": shared,
}

// Check loads the packages matching patterns, tests included, and reports
// every function or method with an unreleased lock on some path. A method
// that only wraps Lock, returning with the lock held on purpose, is
// reported too.
func Check(patterns ...string) ([]Finding, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedDeps | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo,
		Tests: true,
	}
	loaded, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	var errs []error
	packages.Visit(loaded, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = append(errs, e)
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("load packages: %w", errors.Join(errs...))
	}

	prog, pkgs := ssautil.AllPackages(loaded, ssa.InstantiateGenerics)
	prog.Build()

	// The test variant of a package repeats its non-test functions.
	seen := make(map[string]bool)
	var out []Finding
	for _, fn := range functionsIn(prog, pkgs) {
		for _, finding := range check(fn) {
			key := finding.Function + "@" + finding.Location
			if !seen[key] {
				seen[key] = true
				out = append(out, finding)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

// functionsIn returns every source function of pkgs: package-level
// functions, methods and the closures nested in them. Synthetic wrappers and
// generic instantiations are skipped; the latter repeat their origin.
func functionsIn(prog *ssa.Program, pkgs []*ssa.Package) []*ssa.Function {
	want := make(map[*ssa.Package]bool, len(pkgs))
	for _, p := range pkgs {
		if p != nil {
			want[p] = true
		}
	}
	var fns []*ssa.Function
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Synthetic != "" || fn.Origin() != nil {
			continue
		}
		if pkg := enclosingPkg(fn); pkg != nil && want[pkg] {
			fns = append(fns, fn)
		}
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].Pos() < fns[j].Pos() })
	return fns
}

func enclosingPkg(fn *ssa.Function) *ssa.Package {
	for fn.Parent() != nil {
		fn = fn.Parent()
	}
	return fn.Pkg
}

func staticCallee(c *ssa.CallCommon) string {
	if c.IsInvoke() {
		return ""
	}
	if fn, ok := c.Value.(*ssa.Function); ok {
		return fn.String()
	}
	return ""
}

type site struct {
	block *ssa.BasicBlock
	index int
	mode  mode
	pos   token.Pos
}

// check reports each acquisition in fn from which a return is reachable
// without a release of the same mode. A deferred release of a mode covers
// every exit for that mode.
func check(fn *ssa.Function) []Finding {
	if len(fn.Blocks) == 0 {
		return nil
	}

	var sites []site
	deferred := make(map[mode]bool)
	for _, b := range fn.Blocks {
		for i, instr := range b.Instrs {
			switch v := instr.(type) {
			case *ssa.Call:
				if m := acquires[staticCallee(v.Common())]; m != none {
					sites = append(sites, site{block: b, index: i, mode: m, pos: v.Pos()})
				}
			case *ssa.Defer:
				if m := releases[staticCallee(v.Common())]; m != none {
					deferred[m] = true
				}
			}
		}
	}

	var out []Finding
	for _, s := range sites {
		if deferred[s.mode] || !leaksFrom(s) {
			continue
		}
		pos := fn.Prog.Fset.Position(s.pos)
		out = append(out, Finding{
			Function: fn.RelString(nil),
			Location: fmt.Sprintf("%s:%d", pos.Filename, pos.Line),
			Message:  describe(s.mode),
		})
	}
	return out
}

func describe(m mode) string {
	if m == shared {
		return "RLock not released on every return path"
	}
	return "Lock not released on every return path"
}

// releasesIn reports whether b releases m at or after instruction from.
func releasesIn(b *ssa.BasicBlock, from int, m mode) bool {
	for _, instr := range b.Instrs[from:] {
		if call, ok := instr.(*ssa.Call); ok && releases[staticCallee(call.Common())] == m {
			return true
		}
	}
	return false
}

// leaksFrom walks the control-flow graph from s and reports whether an exit
// block is reachable with the lock still held.
func leaksFrom(s site) bool {
	if releasesIn(s.block, s.index+1, s.mode) {
		return false
	}
	visited := map[*ssa.BasicBlock]bool{s.block: true}
	stack := append([]*ssa.BasicBlock(nil), s.block.Succs...)
	if len(s.block.Succs) == 0 {
		return true
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[b] {
			continue
		}
		visited[b] = true
		if releasesIn(b, 0, s.mode) {
			continue
		}
		if len(b.Succs) == 0 {
			return true
		}
		stack = append(stack, b.Succs...)
	}
	return false
}
