//go:build linux

package passthrough

import (
	"syscall"

	"github.com/vaultfs/vaultfs/internal/hostfs"
)

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
