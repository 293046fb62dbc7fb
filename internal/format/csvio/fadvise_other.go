//go:build !linux

package csvio

import "os"

func adviseSequential(*os.File) {}
