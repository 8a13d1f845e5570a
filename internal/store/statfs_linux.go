//go:build linux

package store

import (
	"syscall"

	"github.com/vaultfs/vaultfs/internal/hostfs"
)

// statfs reports the real backing filesystem's statistics rather than a
// synthetic constant, per spec.md §9's redesign note that statfs should
// reflect the actual host mount.
func statfs(root string) (hostfs.StatfsResult, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(root, &st); err != nil {
		return hostfs.StatfsResult{}, hostfs.New(hostfs.KindIO, "Statfs", root, err)
	}
	return hostfs.StatfsResult{
		BlockSize:  uint32(st.Bsize),
		Blocks:     st.Blocks,
		BlocksFree: st.Bfree,
		Files:      st.Files,
		FilesFree:  st.Ffree,
		NameLen:    uint32(st.Namelen),
	}, nil
}
