// Command memspacedemo exercises a memory space end to end against the
// fake physical allocator, file store and swap device, printing the
// resulting layout and, optionally, a pprof profile of it. It exists to
// give the memspace package a runnable walkthrough the way a kernel
// would otherwise only exercise it via real syscalls.
package main

import (
	"flag"
	"fmt"
	"os"

	"memspace/abi"
	"memspace/filebacked"
	"memspace/memprofile"
	"memspace/memspace"
	"memspace/physalloc"
	"memspace/prc"
	"memspace/region"
	"memspace/residence"
	"memspace/swap"
)

func main() {
	profileOut := flag.String("profile", "", "write a pprof profile of the resulting layout to this path")
	flag.Parse()

	if err := run(*profileOut); err != nil {
		fmt.Fprintf(os.Stderr, "memspacedemo: %v\n", err)
		os.Exit(1)
	}
}

func run(profileOut string) error {
	alloc := physalloc.NewFakeAllocator(0)
	refs := prc.NewCounter()

	sp, err := memspace.New(memspace.Config{
		AllocBegin: region.Addr(0x1000),
		ProcessEnd: region.Addr(0x40000000),
		Alloc:      alloc,
		Refs:       refs,
	})
	if err != nil {
		return fmt.Errorf("new space: %w", err)
	}

	heapAddr, err := sp.Map(memspace.AnyAddress(), 4, abi.WRITE|abi.USER, residence.NewAnonymous(alloc, refs))
	if err != nil {
		return fmt.Errorf("map heap: %w", err)
	}
	fmt.Printf("mapped anonymous region at %#x\n", uintptr(heapAddr))

	stackTop, err := sp.MapStack(2, abi.WRITE|abi.USER)
	if err != nil {
		return fmt.Errorf("map stack: %w", err)
	}
	fmt.Printf("mapped stack, top at %#x\n", uintptr(stackTop))

	fileStore := filebacked.NewFakeStore(alloc)
	fileLoc := filebacked.Location{Device: 1, Inode: 99}
	fileAddr, err := sp.Map(memspace.AnyAddress(), 2, abi.WRITE|abi.USER|abi.NOLAZY, residence.NewFile(fileStore, fileLoc, 0, true))
	if err != nil {
		return fmt.Errorf("map file-backed region: %w", err)
	}
	fmt.Printf("mapped file-backed region at %#x\n", uintptr(fileAddr))

	swapDev := swap.NewFakeDevice(alloc)
	slot, err := swapDev.AllocSlot()
	if err != nil {
		return fmt.Errorf("alloc swap slot: %w", err)
	}
	swapAddr, err := sp.Map(memspace.AnyAddress(), 1, abi.WRITE|abi.USER|abi.NOLAZY, residence.NewSwap(swapDev, slot, 0))
	if err != nil {
		return fmt.Errorf("map swap-backed region: %w", err)
	}
	fmt.Printf("mapped swap-backed region at %#x\n", uintptr(swapAddr))

	sp.SetBrkInit(region.Addr(0x40000000 - 0x10000))
	if err := sp.SetBrkPtr(sp.GetBrkPtr() + 0x3000); err != nil {
		return fmt.Errorf("grow brk: %w", err)
	}
	fmt.Printf("brk now at %#x\n", uintptr(sp.GetBrkPtr()))

	child, err := sp.Fork()
	if err != nil {
		return fmt.Errorf("fork: %w", err)
	}
	fmt.Println("parent:", sp.String())
	fmt.Println("child: ", child.String())

	if err := sp.Unmap(fileAddr, 2); err != nil {
		return fmt.Errorf("unmap file-backed region: %w", err)
	}
	fmt.Printf("flushed %d dirty page(s) back to the file store\n", len(fileStore.Flushes()))

	if profileOut != "" {
		f, err := os.Create(profileOut)
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		defer f.Close()
		if err := memprofile.Write(f, sp); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		fmt.Printf("wrote profile to %s\n", profileOut)
	}
	return nil
}
