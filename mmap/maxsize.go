package mmap

import "math"

// MaxSize is the largest file Open agrees to map: 2GB on 32-bit platforms,
// 256TB on 64-bit ones.
const MaxSize = min(math.MaxInt, 0xFFFFFFFFFFFF)
