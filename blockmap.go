package lfs

import "encoding/binary"

// blockmap.go resolves a file's logical block index to a physical block
// number by walking the inode's 12 direct pointers, one indirect block,
// and one double-indirect block (spec §3, NBlocks=14). Spec §9 notes the
// original source left these block-mapping helpers unimplemented; this
// is the from-scratch implementation the contract in §3 requires,
// adapted from the teacher's tablereader.go/inodereader.go pattern of
// resolving a logical position by walking one or more levels of on-disk
// indirection tables.

// indirectPerBlock returns how many uint32 block pointers fit in one
// block.
func indirectPerBlock(blockSize uint32) uint32 {
	return blockSize / 4
}

// blockTier returns which of the three tiers (direct/indirect/
// double-indirect) a given logical block index falls into, and the
// index within that tier.
func blockTier(logical uint32, blockSize uint32) (tier int, idx uint32) {
	if logical < NDirBlocks {
		return 0, logical
	}
	logical -= NDirBlocks
	perBlock := indirectPerBlock(blockSize)
	if logical < perBlock {
		return 1, logical
	}
	logical -= perBlock
	return 2, logical
}

// MaxFileBlocks returns the largest logical block index (exclusive)
// reachable through the 12 direct + 1 indirect + 1 double-indirect
// pointers at the given block size.
func MaxFileBlocks(blockSize uint32) uint64 {
	perBlock := uint64(indirectPerBlock(blockSize))
	return NDirBlocks + perBlock + perBlock*perBlock
}

// resolveBlock returns the physical block number backing logical block
// index `logical` of rec's data. If alloc is false and the position is a
// hole, it returns (0, nil). If alloc is true, any indirect blocks and
// the final data block needed to reach that position are allocated,
// rec.Blocks is mutated in place (the caller persists it), and every new
// allocation goes through AllocBlock so it is journaled.
func (v *Volume) resolveBlock(rec *Inode, logical uint32, alloc bool) (uint32, error) {
	bs := v.dev.BlockSize()
	tier, idx := blockTier(logical, bs)

	switch tier {
	case 0:
		return v.resolveSlot(&rec.Blocks[idx], alloc)
	case 1:
		indBlock, err := v.resolveSlot(&rec.Blocks[IndBlock], alloc)
		if err != nil || indBlock == 0 {
			return 0, err
		}
		return v.resolveViaTable(indBlock, idx, alloc)
	default:
		perBlock := indirectPerBlock(bs)
		outer, inner := idx/perBlock, idx%perBlock
		dindBlock, err := v.resolveSlot(&rec.Blocks[DIndBlock], alloc)
		if err != nil || dindBlock == 0 {
			return 0, err
		}
		indBlock, err := v.resolveViaTable(dindBlock, outer, alloc)
		if err != nil || indBlock == 0 {
			return 0, err
		}
		return v.resolveViaTable(indBlock, inner, alloc)
	}
}

// resolveSlot allocates *slot on demand (when alloc is true and it is
// currently a hole) and returns its value.
func (v *Volume) resolveSlot(slot *uint32, alloc bool) (uint32, error) {
	if *slot != 0 {
		return *slot, nil
	}
	if !alloc {
		return 0, nil
	}
	b, err := v.AllocBlock()
	if err != nil {
		return 0, err
	}
	*slot = b
	return b, nil
}

// resolveViaTable reads the pointer at position `index` within the
// pointer-table block `tableBlock`, allocating and writing back a new
// target block when alloc is true and the slot is a hole.
func (v *Volume) resolveViaTable(tableBlock uint32, index uint32, alloc bool) (uint32, error) {
	perBlock := indirectPerBlock(v.dev.BlockSize())
	if index >= perBlock {
		return 0, newErr("resolve_block", EINVAL, "index beyond indirection table")
	}
	blk, err := v.dev.ReadBlock(uint64(tableBlock))
	if err != nil {
		return 0, v.fence(err)
	}
	off := index * 4
	ptr := binary.LittleEndian.Uint32(blk[off : off+4])
	if ptr != 0 {
		return ptr, nil
	}
	if !alloc {
		return 0, nil
	}
	target, err := v.AllocBlock()
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(blk[off:off+4], target)
	if err := v.dev.WriteBlock(uint64(tableBlock), blk); err != nil {
		return 0, v.fence(err)
	}
	return target, nil
}

// freeInodeBlocks frees every data block rec owns: direct pointers, then
// the indirect block's children followed by the indirect block itself,
// then the double-indirect tree leaves, its indirect blocks, and finally
// the double-indirect block itself (spec §4.3: "freeing each indirect
// block after its children").
func (v *Volume) freeInodeBlocks(rec *Inode) error {
	for i := 0; i < NDirBlocks; i++ {
		if rec.Blocks[i] != 0 {
			if err := v.FreeBlock(rec.Blocks[i]); err != nil {
				return err
			}
			rec.Blocks[i] = 0
		}
	}

	if rec.Blocks[IndBlock] != 0 {
		if err := v.freeTable(rec.Blocks[IndBlock]); err != nil {
			return err
		}
		if err := v.FreeBlock(rec.Blocks[IndBlock]); err != nil {
			return err
		}
		rec.Blocks[IndBlock] = 0
	}

	if rec.Blocks[DIndBlock] != 0 {
		dind := rec.Blocks[DIndBlock]
		blk, err := v.dev.ReadBlock(uint64(dind))
		if err != nil {
			return v.fence(err)
		}
		perBlock := indirectPerBlock(v.dev.BlockSize())
		for i := uint32(0); i < perBlock; i++ {
			ptr := binary.LittleEndian.Uint32(blk[i*4 : i*4+4])
			if ptr == 0 {
				continue
			}
			if err := v.freeTable(ptr); err != nil {
				return err
			}
			if err := v.FreeBlock(ptr); err != nil {
				return err
			}
		}
		if err := v.FreeBlock(dind); err != nil {
			return err
		}
		rec.Blocks[DIndBlock] = 0
	}
	return nil
}

// freeTable frees every non-zero data block pointer stored in the
// pointer-table block tableBlock (but not tableBlock itself).
func (v *Volume) freeTable(tableBlock uint32) error {
	blk, err := v.dev.ReadBlock(uint64(tableBlock))
	if err != nil {
		return v.fence(err)
	}
	perBlock := indirectPerBlock(v.dev.BlockSize())
	for i := uint32(0); i < perBlock; i++ {
		ptr := binary.LittleEndian.Uint32(blk[i*4 : i*4+4])
		if ptr == 0 {
			continue
		}
		if err := v.FreeBlock(ptr); err != nil {
			return err
		}
	}
	return nil
}
