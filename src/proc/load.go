// Loading an ELF binary into a fresh address space and building its
// initial stack, grounded on the Rust original's userproc/load.rs. The
// concrete ELF parser is an out-of-scope external collaborator (spec.md
// §1); this uses the standard library's debug/elf rather than hand-rolling
// one, since the parser itself carries no domain logic worth reimplementing.
package proc

import (
	"bytes"
	"debug/elf"
	"io"

	"defs"
	"fsiface"
	"mem"
	"pagetable"
	"spt"
	"vm"
)

/// execImage is what loading a binary produces: where to start running, and
/// the initial stack pointer once argv has been marshalled onto it.
type execImage struct {
	entryPoint int
	initSp     int
}

/// loadExecutable installs an ELF binary's segments as lazily-loaded pages
/// in pt/suppt and marshals argv onto a freshly allocated stack page,
/// grounded on userproc/load.rs::load_executable.
func loadExecutable(file fsiface.File, pt *pagetable.PageTable_t, suppt *spt.Table, argv []string) (execImage, mem.Pa_t, int, defs.Err_t) {
	img, err := loadElf(file, pt, suppt)
	if err != 0 {
		return execImage{}, 0, 0, err
	}

	sp, stackPa, stackVa, err := initUserStack(pt, img.initSp, argv)
	if err != 0 {
		return execImage{}, 0, 0, err
	}
	img.initSp = sp

	file.DenyWrite()
	return img, stackPa, stackVa, 0
}

/// loadElf parses file as an ELF64 binary and installs a lazy-load SPTE for
/// every page of every PT_LOAD segment, grounded on load.rs::load_elf and
/// load_segment. Nothing is read from file yet -- the first fault into each
/// page does the actual read (spec.md §4.H step 3, §4.I).
func loadElf(file fsiface.File, pt *pagetable.PageTable_t, suppt *spt.Table) (execImage, defs.Err_t) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return execImage{}, defs.EIO
	}
	size, err := file.Len()
	if err != nil {
		return execImage{}, defs.EIO
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(file, raw); err != nil {
		return execImage{}, defs.EIO
	}

	ef, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil || ef.Class != elf.ELFCLASS64 {
		return execImage{}, defs.EUNKNOWNFMT
	}

	for _, p := range ef.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		loadSegment(file, p, pt, suppt)
	}

	return execImage{entryPoint: int(ef.Entry), initSp: defs.USTACKTOP}, 0
}

/// loadSegment installs one PT_LOAD segment's pages as lazy-load SPTEs,
/// splitting it page by page and computing each page's file offset and
/// valid-byte count the way load_segment does: the segment's first page may
/// start mid-page (pageoff), and its last page may be shorter than a full
/// page if Memsz rounds up past Filesz (bss).
func loadSegment(file fsiface.File, p *elf.Prog, pt *pagetable.PageTable_t, suppt *spt.Table) {
	flags := mem.PTE_U
	if p.Flags&elf.PF_X != 0 {
		flags |= mem.PTE_X
	}
	if p.Flags&elf.PF_W != 0 {
		flags |= mem.PTE_W
	}

	ubase := mem.Floor(int(p.Vaddr))
	pageoff := int(p.Vaddr) - ubase
	pages := (pageoff + int(p.Memsz) + mem.PGSIZE - 1) / mem.PGSIZE
	remaining := int(p.Filesz) + pageoff
	readpos := int(p.Off) - pageoff

	for i := 0; i < pages; i++ {
		readsz := remaining
		if readsz > mem.PGSIZE {
			readsz = mem.PGSIZE
		}
		if readsz < 0 {
			readsz = 0
		}
		uaddr := ubase + i*mem.PGSIZE

		pt.Map(0, uaddr, 1, flags)
		suppt.InsertFileLazyLoad(uaddr, file.Clone(), readpos, readsz)

		remaining -= readsz
		readpos += readsz
	}
}

/// initUserStack allocates the new process's single initial stack frame and
/// marshals argv onto it from the top down, grounded on
/// load.rs::init_user_stack. It returns the stack pointer argv marshalling
/// leaves behind, plus the frame's physical address and user virtual
/// address so the caller can register ownership with the frame table once
/// the owning thread exists.
func initUserStack(pt *pagetable.PageTable_t, initSp int, argv []string) (int, mem.Pa_t, int, defs.Err_t) {
	if initSp%mem.PGSIZE != 0 {
		panic("proc: initial stack address misaligns")
	}

	stackPa := vm.Frames.AllocFrame()
	stackPageBegin := mem.Floor(initSp - 1)
	pt.Map(stackPa, stackPageBegin, 1, mem.PTE_P|mem.PTE_U|mem.PTE_W|mem.PTE_X)

	page := vm.Frames.Deref(stackPa)
	uva := func(off int) int { return initSp - mem.PGSIZE + off }

	off := mem.PGSIZE
	argPos := make([]int, 0, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		arg := argv[i]
		n := len(arg)
		off -= n + 1
		if off < 0 {
			return 0, 0, 0, defs.EARGTOOLONG
		}
		argPos = append(argPos, uva(off))
		copy(page[off:off+n], arg)
		page[off+n] = 0
	}

	push := func(val int) {
		off -= 8
		if off < 0 {
			panic("proc: argv pointer array overflowed the stack page")
		}
		for i := 0; i < 8; i++ {
			page[off+i] = byte(val >> (8 * uint(i)))
		}
	}

	off = (off / 8) * 8 // round down to 8-byte alignment

	push(0) // argv[] NULL terminator
	for _, p := range argPos {
		push(p)
	}
	push(0) // dummy return address

	return uva(off), stackPa, stackPageBegin, 0
}
