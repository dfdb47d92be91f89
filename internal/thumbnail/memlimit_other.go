//go:build !unix

package thumbnail

func processMemoryLimit() int64 { return 0 }
