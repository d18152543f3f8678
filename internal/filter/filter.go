// Package filter selects capture frames before they are decoded. Filters
// use a small tcpdump-like syntax and run as classic BPF programs on the
// pure Go virtual machine from golang.org/x/net/bpf, so no libpcap is
// needed.
package filter

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/net/bpf"

	"firestige.xyz/pktt/internal/core"
)

// Filter is a parsed filter expression. Programs are compiled per link
// type on first use.
type Filter struct {
	expr string
	q    *query

	mu  sync.Mutex
	vms map[core.LinkType]*bpf.VM
}

// New parses expr. An empty expression matches every frame.
func New(expr string) (*Filter, error) {
	q, err := parse(expr)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, q: q, vms: make(map[core.LinkType]*bpf.VM)}, nil
}

// Validate reports whether expr is a filter New accepts.
func Validate(expr string) error {
	_, err := New(expr)
	return err
}

func (f *Filter) String() string { return f.expr }

// Program returns the BPF program used for frames of link type lt.
func (f *Filter) Program(lt core.LinkType) ([]bpf.Instruction, error) {
	return compile(f.q, lt)
}

// Assemble returns the program for lt in its raw, kernel loadable form.
func (f *Filter) Assemble(lt core.LinkType) ([]bpf.RawInstruction, error) {
	prog, err := f.Program(lt)
	if err != nil {
		return nil, err
	}
	return bpf.Assemble(prog)
}

// Match reports whether frame passes the filter. Frames of link types the
// filter has no layout for pass unfiltered.
func (f *Filter) Match(frame core.RawFrame) (bool, error) {
	if f.q.empty() {
		return true, nil
	}
	vm, err := f.vm(frame.LinkType)
	if errors.Is(err, core.ErrUnsupportedLink) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	n, err := vm.Run(frame.Data)
	if err != nil {
		return false, fmt.Errorf("run filter %q: %w", f.expr, err)
	}
	return n > 0, nil
}

func (f *Filter) vm(lt core.LinkType) (*bpf.VM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if vm, ok := f.vms[lt]; ok {
		return vm, nil
	}
	prog, err := compile(f.q, lt)
	if err != nil {
		return nil, err
	}
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return nil, fmt.Errorf("load filter %q: %w", f.expr, err)
	}
	f.vms[lt] = vm
	return vm, nil
}
