// Command softmmuctl exercises the memory subsystem end to end: it
// reserves a virtual range, touches a page to trigger demand paging,
// writes a cross-page operand through the stash, and dumps the
// resulting counters as a pprof profile.
package main

import (
	"flag"
	"fmt"
	"os"

	"softmmu"
	"softmmu/internal/pagetable"
)

func main() {
	var (
		reserve = flag.Int64("reserve", 0x2000, "bytes to reserve starting at -virt")
		virt    = flag.Int64("virt", 0x400000, "virtual base address to reserve")
		profile = flag.String("profile", "", "write a pprof profile of the run to this path")
	)
	flag.Parse()

	sys := softmmu.NewSystem()
	sys.ReserveReal(0x10000)

	m := softmmu.NewMachine(sys, stderrFaults{})

	key := pagetable.MakeLeaf(0, pagetable.V|pagetable.RSRV)
	if !sys.ReserveVirtual(*virt, int(*reserve), key) {
		fmt.Fprintln(os.Stderr, "reserve failed")
		os.Exit(1)
	}

	p := m.LookupAddress(*virt + 0x123)
	if p == nil {
		fmt.Fprintln(os.Stderr, "lookup failed after reserve")
		os.Exit(1)
	}
	fmt.Printf("first touch ok, page starts zero: %v\n", p[0] == 0)

	crossAddr := *virt + 0xffe
	stash := m.ReserveAddress(crossAddr, 6, true)
	copy(stash, []byte("ABCDEF"))
	m.CommitStash()

	lo := m.LookupAddress(crossAddr)
	hi := m.LookupAddress((crossAddr &^ int64(pagetable.PGOFFSET)) + pagetable.PGSIZE)
	fmt.Printf("cross-page write: %q %q\n", lo[:2], hi[:4])

	snap := sys.Stats.Snapshot()
	fmt.Printf("committed=%d reserved=%d pagetables=%d\n",
		snap["committed"], snap["reserved"], snap["pagetables"])

	if *profile != "" {
		f, err := os.Create(*profile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		if err := sys.WriteProfile(f); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

// stderrFaults is the simplest possible FaultHandler: it reports the
// fault and exits, standing in for the emulator core's guest-signal
// delivery, which is out of scope here.
type stderrFaults struct{}

func (stderrFaults) SegFault(m *softmmu.Machine, v int64) {
	fmt.Fprintf(os.Stderr, "segfault at %#x\n", v)
	os.Exit(1)
}

func (stderrFaults) InvalidOpcode(m *softmmu.Machine) {
	fmt.Fprintln(os.Stderr, "invalid opcode")
	os.Exit(1)
}
